package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raterudder/renacsync/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabase runs the behavior every provider must share. ns keeps runs
// against shared backends apart.
func testDatabase(t *testing.T, db Database, ns string) {
	ctx := context.Background()
	channel := ns + "101"
	point := channel + ".saving.co2_reduced"
	meta := types.PointMeta{
		Kind:  types.ObjectKindState,
		Name:  "Co2 Reduced",
		Role:  types.RoleFillPercentage,
		Type:  types.ValueTypeNumber,
		Unit:  "kg",
		Read:  true,
		Write: false,
	}

	t.Run("Settings", func(t *testing.T) {
		require.NoError(t, db.SetSettings(ctx, types.Settings{ExclusionList: []string{"a", "b"}}, 1))

		s, version, err := db.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, version)
		assert.Equal(t, []string{"a", "b"}, s.ExclusionList)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		ok, err := db.ObjectExists(ctx, point)
		require.NoError(t, err)
		assert.False(t, ok)

		state, err := db.ReadState(ctx, point)
		require.NoError(t, err)
		assert.Nil(t, state)

		require.NoError(t, db.CreateObjectIfAbsent(ctx, channel, types.ChannelMeta(channel)))
		require.NoError(t, db.CreateObjectIfAbsent(ctx, point, meta))

		ok, err = db.ObjectExists(ctx, point)
		require.NoError(t, err)
		assert.True(t, ok)

		state, err = db.ReadState(ctx, point)
		require.NoError(t, err)
		assert.Nil(t, state, "new object has no state")

		ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, db.WriteState(ctx, point, types.PointState{Value: 12.5, Ack: true, Timestamp: ts}))

		state, err = db.ReadState(ctx, point)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, 12.5, state.Value)
		assert.True(t, state.Ack)
		assert.True(t, ts.Equal(state.Timestamp))

		t.Run("CreateKeepsExisting", func(t *testing.T) {
			other := meta
			other.Name = "Changed"
			require.NoError(t, db.CreateObjectIfAbsent(ctx, point, other))

			points, err := db.ListPoints(ctx, point)
			require.NoError(t, err)
			require.Len(t, points, 1)
			assert.Equal(t, "Co2 Reduced", points[0].Meta.Name)
			require.NotNil(t, points[0].State)
			assert.Equal(t, 12.5, points[0].State.Value)
		})

		t.Run("ListPrefix", func(t *testing.T) {
			require.NoError(t, db.CreateObjectIfAbsent(ctx, ns+"1011.x", meta))

			points, err := db.ListPoints(ctx, channel+".")
			require.NoError(t, err)
			require.Len(t, points, 1)
			assert.Equal(t, point, points[0].ID)

			points, err = db.ListPoints(ctx, channel)
			require.NoError(t, err)
			var ids []string
			for _, p := range points {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, []string{channel, point, ns + "1011.x"}, ids)
			assert.Equal(t, types.ObjectKindChannel, points[0].Meta.Kind)
		})

		t.Run("Delete", func(t *testing.T) {
			require.NoError(t, db.DeleteObject(ctx, point))
			ok, err := db.ObjectExists(ctx, point)
			require.NoError(t, err)
			assert.False(t, ok)

			// deleting twice is fine
			require.NoError(t, db.DeleteObject(ctx, point))
		})
	})

	t.Run("WriteMissing", func(t *testing.T) {
		err := db.WriteState(ctx, ns+"999.missing", types.PointState{Value: "x"})
		assert.Error(t, err)
	})

	t.Run("InvalidID", func(t *testing.T) {
		_, err := db.ObjectExists(ctx, "")
		assert.Error(t, err)
		assert.Error(t, db.CreateObjectIfAbsent(ctx, "a/b", meta))
	})
}

func TestSQLiteProvider(t *testing.T) {
	s := &SQLiteProvider{path: filepath.Join(t.TempDir(), "test.db")}
	require.NoError(t, s.Validate())
	require.NoError(t, s.Init(context.Background()))
	defer s.Close()

	t.Run("EmptySettings", func(t *testing.T) {
		settings, version, err := s.GetSettings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, version)
		assert.Empty(t, settings.ExclusionList)
	})

	testDatabase(t, s, "")
}

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: "test-project-id",
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	require.NoError(t, f.Validate())
	testDatabase(t, f, "")
}

func TestRedisProvider(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	r := &RedisProvider{addr: addr, keyPrefix: fmt.Sprintf("test-%d", time.Now().UnixNano())}
	require.NoError(t, r.Validate())
	require.NoError(t, r.Init(context.Background()))
	defer r.Close()

	testDatabase(t, r, "")
}

func TestRedisValidate(t *testing.T) {
	assert.Error(t, (&RedisProvider{}).Validate())

	p := NewRedisProvider(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "x")
	assert.Equal(t, "x:point:1.a", p.pointKey("1.a"))
	assert.Equal(t, "x:points", p.indexKey())
	assert.NoError(t, p.Close())
}

func TestConfigStore(t *testing.T) {
	ctx := context.Background()
	s := &SQLiteProvider{path: filepath.Join(t.TempDir(), "config.db")}
	require.NoError(t, s.Init(ctx))
	defer s.Close()

	cs := NewConfigStore(s, []string{"inverter.work_mode"})

	keys, err := cs.ExclusionList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"inverter.work_mode"}, keys, "defaults until saved")

	require.NoError(t, cs.PersistExclusionList(ctx, []string{"inverter.work_mode", "saving.co2_reduced"}))

	keys, err = cs.ExclusionList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"inverter.work_mode", "saving.co2_reduced"}, keys)

	t.Run("EmptyStoredListWins", func(t *testing.T) {
		require.NoError(t, cs.PersistExclusionList(ctx, nil))
		keys, err := cs.ExclusionList(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, "101/", prefixEnd("101."))
	assert.Equal(t, "b", prefixEnd("a"))
	assert.Equal(t, "", prefixEnd("\xff"))
}
