package brackets

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConn builds a hub connection without a live socket. The heartbeat ping
// treats a nil socket as healthy, so only markClosed kills these.
func testConn(room string) *Conn {
	return NewConn(nil, room)
}

func drain(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestRoomIdentifiers(t *testing.T) {
	assert.Equal(t, "tournament:42", TournamentRoom(42))
	assert.Equal(t, "game:abc", GameRoom("abc"))

	gameID, ok := ParseGameRoom("game:abc")
	require.True(t, ok)
	assert.Equal(t, "abc", gameID)

	_, ok = ParseGameRoom("tournament:42")
	assert.False(t, ok)
	_, ok = ParseGameRoom("game:")
	assert.False(t, ok)
}

func TestJoinAndLeave(t *testing.T) {
	h := NewHub()
	room := TournamentRoom(1)
	c1 := testConn(room)
	c2 := testConn(room)

	h.Join(room, c1, 10)
	h.Join(room, c2, 11)
	assert.Equal(t, 2, h.RoomSize(room))

	h.Leave(room, c1)
	assert.Equal(t, 1, h.RoomSize(room))

	h.Leave(room, c2)
	assert.Equal(t, 0, h.RoomSize(room))
	assert.Empty(t, h.rooms, "empty rooms are deleted")
	assert.Empty(t, h.conns)
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := NewHub()
	inRoom := testConn(TournamentRoom(1))
	other := testConn(TournamentRoom(2))
	h.Join(TournamentRoom(1), inRoom, 10)
	h.Join(TournamentRoom(2), other, 11)

	h.BroadcastToRoom(TournamentRoom(1), WebSocketMessage{
		Type:    TypeRoundAdvanced,
		Payload: RoundAdvancedPayload{CompletedRound: 1, NextRound: 2, WinnersCount: 4},
	})

	got := drain(inRoom)
	require.Len(t, got, 1)
	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(got[0], &msg))
	assert.Equal(t, TypeRoundAdvanced, msg.Type)

	assert.Empty(t, drain(other), "other rooms never see the message")
}

func TestBroadcastPurgesDeadConnectionEverywhere(t *testing.T) {
	h := NewHub()
	tournamentRoom := TournamentRoom(1)
	gameRoom := GameRoom("g1")

	dead := testConn(tournamentRoom)
	alive := testConn(tournamentRoom)
	h.Join(tournamentRoom, dead, 10)
	h.Join(gameRoom, dead, 10)
	h.Join(tournamentRoom, alive, 11)

	dead.markClosed()
	h.BroadcastToRoom(tournamentRoom, WebSocketMessage{Type: TypeMatchStarted})

	assert.Equal(t, 1, h.RoomSize(tournamentRoom), "dead connection removed from the broadcast room")
	assert.Equal(t, 0, h.RoomSize(gameRoom), "and from every other room it was in")
	assert.Len(t, drain(alive), 1, "the healthy connection still gets the message")
}

func TestRelaySkipsSender(t *testing.T) {
	h := NewHub()
	room := GameRoom("g1")
	white := testConn(room)
	black := testConn(room)
	spectator := testConn(room)
	h.Join(room, white, 10)
	h.Join(room, black, 11)
	h.Join(room, spectator, 0)

	move := []byte(`{"move":"e2e4"}`)
	h.RelayToGameRoom(room, white, move)

	assert.Empty(t, drain(white), "moves are never echoed to the sender")
	assert.Len(t, drain(black), 1)
	assert.Len(t, drain(spectator), 1)
}

func TestRelaySingleConnectionException(t *testing.T) {
	h := NewHub()
	room := GameRoom("g1")
	only := testConn(room)
	h.Join(room, only, 10)

	h.RelayToGameRoom(room, only, []byte(`{"move":"e2e4"}`))
	assert.Len(t, drain(only), 1, "a lone connection receives its own relay")
}

func TestHeartbeatPurgesClosedConnections(t *testing.T) {
	h := NewHub()
	room := TournamentRoom(1)
	healthy := testConn(room)
	closed := testConn(room)
	h.Join(room, healthy, 10)
	h.Join(room, closed, 11)

	closed.markClosed()
	h.HeartbeatSweep()

	assert.Equal(t, 1, h.RoomSize(room))
	h.mu.RLock()
	_, healthyKnown := h.conns[healthy]
	_, closedKnown := h.conns[closed]
	h.mu.RUnlock()
	assert.True(t, healthyKnown)
	assert.False(t, closedKnown)
}

func TestEnqueueOnFullBufferReportsDead(t *testing.T) {
	c := testConn(TournamentRoom(1))
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, c.enqueue([]byte("x")))
	}
	assert.False(t, c.enqueue([]byte("overflow")), "a full buffer marks the connection dead to callers")
}
