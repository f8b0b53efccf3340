package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLobby() *Lobby {
	l := newLobby(&Config{})
	l.seedFn = func() int64 { return 42 }
	return l
}

func newTestClient() *ArenaClient {
	return &ArenaClient{
		send:   make(chan any, 256),
		connID: uuid.NewString(),
	}
}

func drain(c *ArenaClient) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func messagesOfType[T any](msgs []any) []T {
	var out []T
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func onlyRoom(t *testing.T, l *Lobby) *Room {
	t.Helper()
	require.Len(t, l.rooms, 1)
	for _, room := range l.rooms {
		return room
	}
	return nil
}

// joinPlayers seats n clients with nicknames player1..playerN.
func joinPlayers(t *testing.T, l *Lobby, n int) []*ArenaClient {
	t.Helper()
	clients := make([]*ArenaClient, 0, n)
	for i := 1; i <= n; i++ {
		c := newTestClient()
		l.HandleJoin(c, ClientMessage{Type: "join", Nickname: fmt.Sprintf("player%d", i)})
		require.Equal(t, i, c.playerID, "player %d seat", i)
		clients = append(clients, c)
	}
	return clients
}

// startGame drives the room through the countdown phases to the start. A
// full room is already in the short window; a smaller one walks through
// both.
func startGame(t *testing.T, l *Lobby) {
	t.Helper()
	room := onlyRoom(t, l)
	if room.state == roomCountdownLong {
		room.countdown = 1
		l.tick()
	}
	require.Equal(t, roomCountdownShort, room.state)
	room.countdown = 1
	l.tick()
	require.Equal(t, roomPlaying, room.state)
}

func TestJoinRejectsInvalidNicknames(t *testing.T) {
	l := newTestLobby()

	cases := []struct {
		name     string
		nickname string
	}{
		{"too short", "ab"},
		{"too long", "abcdefghijklmnopq"},
		{"bad characters", "bad nick!"},
		{"markup", "<script>abc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient()
			l.HandleJoin(c, ClientMessage{Type: "join", Nickname: tc.nickname})

			msgs := drain(c)
			require.Len(t, msgs, 1)
			invalid, ok := msgs[0].(InvalidNicknameMessage)
			require.True(t, ok)
			assert.NotEmpty(t, invalid.Reason)
			assert.Empty(t, l.rooms)
		})
	}
}

func TestNicknamesAreUniqueIgnoringCase(t *testing.T) {
	l := newTestLobby()

	first := newTestClient()
	l.HandleJoin(first, ClientMessage{Type: "join", Nickname: "Gopher"})
	require.Equal(t, 1, first.playerID)

	second := newTestClient()
	l.HandleJoin(second, ClientMessage{Type: "join", Nickname: "gopher"})

	rejections := messagesOfType[InvalidNicknameMessage](drain(second))
	require.Len(t, rejections, 1)
	assert.Contains(t, rejections[0].Reason, "taken")
}

func TestJoinHandshakeAndPlayerCount(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)

	msgs := drain(clients[0])
	joined := messagesOfType[RoomJoinedMessage](msgs)
	require.Len(t, joined, 1)
	assert.Equal(t, onlyRoom(t, l).id, joined[0].RoomID)

	assigned := messagesOfType[PlayerIDAssignedMessage](msgs)
	require.Len(t, assigned, 1)
	assert.Equal(t, 1, assigned[0].PlayerID)

	counts := messagesOfType[PlayerCountMessage](msgs)
	require.NotEmpty(t, counts)
	assert.Equal(t, 2, counts[len(counts)-1].Count)
}

func TestFreedSeatIsReassigned(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 3)

	l.HandleDisconnect(clients[0])

	replacement := newTestClient()
	l.HandleJoin(replacement, ClientMessage{Type: "join", Nickname: "newcomer"})
	assert.Equal(t, 1, replacement.playerID)
}

func TestCountdownStartsAtTwoPlayers(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)

	room := onlyRoom(t, l)
	assert.Equal(t, roomCountdownLong, room.state)
	assert.Equal(t, LobbyCountdownSeconds, room.countdown)

	l.tick()
	ticks := messagesOfType[CountdownTickMessage](drain(clients[1]))
	require.NotEmpty(t, ticks)
	assert.Equal(t, LobbyCountdownSeconds-1, ticks[len(ticks)-1].Seconds)
}

func TestExpiredLobbyCountdownEntersFinalWindow(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)

	room := onlyRoom(t, l)
	for i := 0; i < LobbyCountdownSeconds; i++ {
		l.tick()
	}

	// The long countdown running out arms the short window; the game has
	// not started and no seed is assigned yet.
	assert.Equal(t, roomCountdownShort, room.state)
	assert.Equal(t, FullRoomCountdownSeconds, room.countdown)
	assert.Zero(t, room.seed)
	assert.Empty(t, messagesOfType[GameStartMessage](drain(clients[0])))

	for i := 0; i < FullRoomCountdownSeconds; i++ {
		l.tick()
	}
	assert.Equal(t, roomPlaying, room.state)
	require.Len(t, messagesOfType[GameStartMessage](drain(clients[0])), 1)
}

func TestFullRoomRestartsShortCountdown(t *testing.T) {
	l := newTestLobby()
	joinPlayers(t, l, 3)

	room := onlyRoom(t, l)
	room.countdown = 4

	c := newTestClient()
	l.HandleJoin(c, ClientMessage{Type: "join", Nickname: "player4"})
	assert.Equal(t, roomCountdownShort, room.state)
	assert.Equal(t, FullRoomCountdownSeconds, room.countdown)
}

func TestGameStartBroadcastsSeedAndSpawns(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)

	starts := messagesOfType[GameStartMessage](drain(clients[0]))
	require.Len(t, starts, 1)
	start := starts[0]

	assert.Equal(t, int64(42), start.Seed)
	require.Len(t, start.Players, 2)
	assert.Equal(t, 1, start.Players[0].PlayerID)
	assert.Equal(t, Position{X: 60, Y: 60}, start.Players[0].Position)
	assert.Equal(t, StartingLives, start.Players[0].Lives)
	assert.Equal(t, Position{X: 780, Y: 60}, start.Players[1].Position)
}

func TestMoveRelayAugmentsPlayerID(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)
	drain(clients[0])
	drain(clients[1])

	l.HandleMessage(clients[0], ClientMessage{
		Type:         "playerMove",
		Position:     &Position{X: 62, Y: 60},
		GridPosition: &GridPosition{X: 1, Y: 1},
		Movement:     &Movement{DX: 1},
	})

	moved := messagesOfType[PlayerMovedMessage](drain(clients[1]))
	require.Len(t, moved, 1)
	assert.Equal(t, 1, moved[0].PlayerID)
	assert.Equal(t, 62.0, moved[0].Position.X)

	// The sender never receives their own echo.
	assert.Empty(t, messagesOfType[PlayerMovedMessage](drain(clients[0])))
}

func TestBombRelay(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)
	drain(clients[0])
	drain(clients[1])

	l.HandleMessage(clients[0], ClientMessage{
		Type:         "placeBomb",
		GridPosition: &GridPosition{X: 1, Y: 1},
		BombID:       "1_1700000000000",
	})
	placed := messagesOfType[BombPlacedMessage](drain(clients[1]))
	require.Len(t, placed, 1)
	assert.Equal(t, 1, placed[0].PlayerID)
	assert.Equal(t, "1_1700000000000", placed[0].BombID)

	l.HandleMessage(clients[0], ClientMessage{
		Type:           "bombExploded",
		BombID:         "1_1700000000000",
		ExplosionCells: []GridPosition{{X: 1, Y: 1}, {X: 2, Y: 1}},
	})
	exploded := messagesOfType[BombExplodedMessage](drain(clients[1]))
	require.Len(t, exploded, 1)
	assert.Len(t, exploded[0].ExplosionCells, 2)
}

func TestChatIsBroadcastWithNickname(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	drain(clients[0])
	drain(clients[1])

	l.HandleMessage(clients[0], ClientMessage{Type: "chat", Message: "good luck"})

	for _, c := range clients {
		chats := messagesOfType[ChatMessage](drain(c))
		require.Len(t, chats, 1)
		assert.Equal(t, "player1: good luck", chats[0].Message)
	}
}

func eliminate(t *testing.T, l *Lobby, c *ArenaClient) {
	t.Helper()
	for i := 0; i < StartingLives; i++ {
		l.HandleMessage(c, ClientMessage{Type: "playerDied"})
	}
}

func TestDeathBroadcastsAuthoritativeLives(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)
	drain(clients[1])

	l.HandleMessage(clients[0], ClientMessage{Type: "playerDied"})

	deaths := messagesOfType[PlayerDiedMessage](drain(clients[1]))
	require.Len(t, deaths, 1)
	assert.Equal(t, 1, deaths[0].PlayerID)
	assert.Equal(t, StartingLives-1, deaths[0].Lives)
}

func TestEliminationOrderBuildsLeaderboard(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 4)
	startGame(t, l)
	for _, c := range clients {
		drain(c)
	}

	// Eliminated in order: player2, player4, player1. Player3 survives.
	eliminate(t, l, clients[1])
	eliminate(t, l, clients[3])
	eliminate(t, l, clients[0])

	room := onlyRoom(t, l)
	assert.Equal(t, roomFinished, room.state)

	msgs := drain(clients[2])
	eliminations := messagesOfType[PlayerEliminatedMessage](msgs)
	require.Len(t, eliminations, 3)
	assert.Equal(t, 2, eliminations[0].PlayerID)
	assert.Equal(t, 1, eliminations[0].EliminationOrder)

	overs := messagesOfType[GameOverMessage](msgs)
	require.Len(t, overs, 1)
	over := overs[0]

	require.NotNil(t, over.Winner)
	assert.Equal(t, "player3", over.Winner.Nickname)

	require.Len(t, over.Leaderboard, 4)
	names := make([]string, 0, 4)
	for _, entry := range over.Leaderboard {
		names = append(names, entry.Nickname)
	}
	assert.Equal(t, []string{"player3", "player1", "player4", "player2"}, names)
	assert.Equal(t, 1, over.Leaderboard[0].Rank)
	assert.Equal(t, 4, over.Leaderboard[3].Rank)
}

func TestFinishedRoomResetsAfterDelay(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)
	eliminate(t, l, clients[0])

	room := onlyRoom(t, l)
	require.Equal(t, roomFinished, room.state)
	for _, c := range clients {
		drain(c)
	}

	for i := 0; i < ResetDelaySeconds; i++ {
		l.tick()
	}

	// Two players are still seated, so the next countdown begins at once.
	assert.Equal(t, roomCountdownLong, room.state)
	assert.Equal(t, LobbyCountdownSeconds, room.countdown)

	msgs := drain(clients[1])
	assert.Len(t, messagesOfType[ReturnToLobbyMessage](msgs), 1)
	require.NotEmpty(t, messagesOfType[PlayerCountMessage](msgs))

	for _, p := range room.players {
		assert.Equal(t, StartingLives, p.lives)
		assert.False(t, p.eliminated)
	}
}

func TestDisconnectDuringCountdownStopsIt(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)

	room := onlyRoom(t, l)
	require.Equal(t, roomCountdownLong, room.state)

	l.HandleDisconnect(clients[0])
	assert.Equal(t, roomWaiting, room.state)

	drain(clients[1])
	l.tick()
	assert.Empty(t, messagesOfType[CountdownTickMessage](drain(clients[1])))
}

func TestDisconnectDuringGameEndsMatch(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)
	drain(clients[1])

	l.HandleDisconnect(clients[0])

	msgs := drain(clients[1])
	require.Len(t, messagesOfType[PlayerDisconnectedMessage](msgs), 1)
	overs := messagesOfType[GameOverMessage](msgs)
	require.Len(t, overs, 1)
	require.NotNil(t, overs[0].Winner)
	assert.Equal(t, "player2", overs[0].Winner.Nickname)
}

func TestEmptyRoomIsRemoved(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)

	l.HandleDisconnect(clients[0])
	l.HandleDisconnect(clients[1])

	assert.Empty(t, l.rooms)
	assert.Empty(t, l.clientRooms)
}

func TestDisconnectFreesNickname(t *testing.T) {
	l := newTestLobby()
	c := newTestClient()
	l.HandleJoin(c, ClientMessage{Type: "join", Nickname: "gopher"})

	l.HandleDisconnect(c)

	again := newTestClient()
	l.HandleJoin(again, ClientMessage{Type: "join", Nickname: "gopher"})
	assert.Equal(t, 1, again.playerID)
}

func TestServerAtCapacityRejectsJoin(t *testing.T) {
	l := newTestLobby()
	for i := 0; i < MaxRooms; i++ {
		id := fmt.Sprintf("room%03d", i)
		l.rooms[id] = &Room{
			id:        id,
			state:     roomPlaying,
			players:   make(map[int]*RoomPlayer),
			createdAt: time.Now(),
		}
	}

	c := newTestClient()
	l.HandleJoin(c, ClientMessage{Type: "join", Nickname: "latecomer"})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(RoomFullMessage)
	assert.True(t, ok)
}

func TestPlayersJoinOldestOpenRoom(t *testing.T) {
	l := newTestLobby()
	clients := joinPlayers(t, l, 2)
	startGame(t, l)

	// With the only room playing, a new join opens a second room.
	c := newTestClient()
	l.HandleJoin(c, ClientMessage{Type: "join", Nickname: "fresh"})
	assert.Len(t, l.rooms, 2)
	assert.Equal(t, 1, c.playerID)

	_ = clients
}

func TestRunExitsOnStop(t *testing.T) {
	l := newTestLobby()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		l.run(stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lobby ticker kept running after stop")
	}
}
