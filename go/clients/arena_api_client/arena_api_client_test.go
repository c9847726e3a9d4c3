package arena_api_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ArenaApiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewArenaApiClient(srv.URL, "test-client", time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCurrentRound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CurrentRoundEndpoint, r.URL.Path)
		assert.Equal(t, "test-client", r.Header.Get(ClientIDHeader))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"id":             5,
				"status":         "active",
				"judgeCharacter": "chef-inferno",
				"prizePool":      0.1,
				"timeLeft":       45,
			},
		})
	})

	snap, err := client.CurrentRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.ID)
	assert.Equal(t, "active", snap.Status)
	assert.Equal(t, 45, snap.TimeLeft)
}

func TestCurrentRound_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   interface{}
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found means no active round",
			status: http.StatusNotFound,
			body:   map[string]interface{}{"success": false, "message": "No active round"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoActiveRound)
			},
		},
		{
			name:   "empty data means no active round",
			status: http.StatusOK,
			body:   map[string]interface{}{"success": true, "data": nil},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoActiveRound)
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   map[string]interface{}{"success": false, "message": "slow down"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRateLimited)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]interface{}{"success": false, "message": "boom"},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
				assert.Equal(t, "boom", apiErr.Message)
			},
		},
		{
			name:   "failure envelope",
			status: http.StatusOK,
			body:   map[string]interface{}{"success": false, "message": "nope"},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "nope", apiErr.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := client.CurrentRound(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestCurrentRound_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewArenaApiClient(srv.URL, "", 50*time.Millisecond)
	_, err := client.CurrentRound(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoActiveRound)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestVotingStatsAndUserVote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/voting/stats/9":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"votes":      map[string]int{"robo-roaster": 3, "chef-inferno": 1},
					"totalVotes": 4,
					"isLocked":   false,
				},
			})
		case "/voting/vote/9/0xabc":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"characterId": "robo-roaster"},
			})
		case "/voting/vote/9/0xnew":
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false})
		default:
			http.NotFound(w, r)
		}
	})

	stats, err := client.VotingStats(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Votes["robo-roaster"])
	assert.Equal(t, 4, stats.TotalVotes)

	vote, err := client.UserVote(context.Background(), 9, "0xabc")
	require.NoError(t, err)
	assert.True(t, vote.HasVoted)
	assert.Equal(t, "robo-roaster", vote.CharacterID)

	vote, err = client.UserVote(context.Background(), 9, "0xnew")
	require.NoError(t, err)
	assert.False(t, vote.HasVoted)
}

func TestCastVote_AlreadyVoted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req castVoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(3), req.RoundID)
		assert.Equal(t, "0xabc", req.VoterAddress)
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"code":    "ALREADY_VOTED",
			"message": "already voted",
		})
	})

	err := client.CastVote(context.Background(), 3, "0xabc", "robo-roaster")
	require.Error(t, err)
	assert.True(t, IsAlreadyVoted(err))
}

func TestSubmitVoteResultAndRecentWinners(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case VoteNextJudgeEndpoint:
			var req voteNextJudgeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "chef-inferno", req.CharacterID)
			assert.Equal(t, 7, req.TotalVotes)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		case "/treasury/recent-winners":
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data": []map[string]interface{}{
					{"roundId": 4, "winnerAddress": "0x1", "amount": 0.5, "txHash": "0xh"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, client.SubmitVoteResult(context.Background(), "chef-inferno", 7))

	winners, err := client.RecentWinners(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, int64(4), winners[0].RoundID)
}
