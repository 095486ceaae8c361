package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestCampaignRoundtrip(t *testing.T) {
	s := openTestStore(t)
	started := time.Now()

	require.NoError(t, s.BeginCampaign("c1", started))
	require.NoError(t, s.SaveBug("c1", "b1", "Alarm(L1)", "vuln.c", 42, 3, started, []byte{0xde}))
	require.NoError(t, s.SaveRound("c1", 1, 1500*time.Millisecond, 4, 0))
	require.NoError(t, s.SaveRound("c1", 2, 3*time.Second, 4, 1))
	require.NoError(t, s.FinishCampaign("c1", started.Add(time.Minute), 2, 1))

	var rounds, bugs int
	require.NoError(t, s.db.QueryRow(
		`SELECT rounds, bugs FROM campaigns WHERE id = ?`, "c1").Scan(&rounds, &bugs))
	require.Equal(t, 2, rounds)
	require.Equal(t, 1, bugs)

	var alarmID string
	var input []byte
	require.NoError(t, s.db.QueryRow(
		`SELECT alarm_id, input FROM bugs WHERE id = ?`, "b1").Scan(&alarmID, &input))
	require.Equal(t, "Alarm(L1)", alarmID)
	require.Equal(t, []byte{0xde}, input)

	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM rounds WHERE campaign_id = ?`, "c1").Scan(&n))
	require.Equal(t, 2, n)
}

func TestSaveBugIdempotent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.BeginCampaign("c1", now))
	require.NoError(t, s.SaveBug("c1", "b1", "Alarm(L1)", "vuln.c", 42, 1, now, nil))
	require.NoError(t, s.SaveBug("c1", "b1", "Alarm(L1)", "vuln.c", 42, 1, now, nil))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM bugs`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestSaveRoundUpserts(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveRound("c1", 1, time.Second, 4, 0))
	require.NoError(t, s.SaveRound("c1", 1, 2*time.Second, 4, 1))

	var bugs int
	require.NoError(t, s.db.QueryRow(
		`SELECT bugs FROM rounds WHERE campaign_id = ? AND round = 1`, "c1").Scan(&bugs))
	require.Equal(t, 1, bugs)
}

func TestOpenReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.BeginCampaign("c1", time.Now()))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM campaigns`).Scan(&n))
	require.Equal(t, 1, n)
}
