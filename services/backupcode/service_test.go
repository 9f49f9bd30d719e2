package backupcode

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/secondfactor/services/mfarecord"
	"github.com/tech-arch1tect/secondfactor/testutils"
)

func newTestService(t *testing.T) (*Service, *mfarecord.Store) {
	t.Helper()
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &mfarecord.MfaRecord{}, &BackupCode{})
	records := mfarecord.NewStore(db, nil)
	return NewService(cfg, db, records, nil), records
}

func enableUser(t *testing.T, records *mfarecord.Store, userID string) {
	t.Helper()
	enabled := true
	secret := "JBSWY3DPEHPK3PXP"
	_, err := records.Upsert(userID, mfarecord.Update{Enabled: &enabled, TotpSecret: &secret})
	require.NoError(t, err)
}

func TestService_Generate(t *testing.T) {
	service, _ := newTestService(t)

	codes, err := service.Generate()
	require.NoError(t, err)
	require.Len(t, codes, 8)

	pattern := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code], "codes must be unique")
		seen[code] = true
	}
}

func TestService_Consume(t *testing.T) {
	service, records := newTestService(t)

	enableUser(t, records, "user-1")

	codes, err := service.Generate()
	require.NoError(t, err)
	require.NoError(t, service.StoreCodesIn(service.db, "user-1", codes))

	t.Run("case-insensitive match consumes the code", func(t *testing.T) {
		ok, err := service.Consume("user-1", codes[0])
		require.NoError(t, err)
		assert.True(t, ok)

		remaining, err := service.Remaining("user-1")
		require.NoError(t, err)
		assert.Equal(t, 7, remaining)
	})

	t.Run("second consume of the same code fails", func(t *testing.T) {
		ok, err := service.Consume("user-1", codes[0])
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lowercase input is normalized", func(t *testing.T) {
		lower := []rune(codes[1])
		for i, r := range lower {
			if r >= 'A' && r <= 'Z' {
				lower[i] = r + 32
			}
		}
		ok, err := service.Consume("user-1", string(lower))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown code", func(t *testing.T) {
		ok, err := service.Consume("user-1", "NOPE0000")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty code", func(t *testing.T) {
		ok, err := service.Consume("user-1", "  ")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing record", func(t *testing.T) {
		ok, err := service.Consume("missing", codes[2])
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("disabled record refuses consumption", func(t *testing.T) {
		disabled := false
		_, err := records.Upsert("user-1", mfarecord.Update{Enabled: &disabled})
		require.NoError(t, err)

		ok, err := service.Consume("user-1", codes[2])
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestService_StoreCodesIn_ReplacesOldCodes(t *testing.T) {
	service, records := newTestService(t)
	enableUser(t, records, "user-2")

	first, err := service.Generate()
	require.NoError(t, err)
	require.NoError(t, service.StoreCodesIn(service.db, "user-2", first))

	second, err := service.Generate()
	require.NoError(t, err)
	require.NoError(t, service.StoreCodesIn(service.db, "user-2", second))

	remaining, err := service.Remaining("user-2")
	require.NoError(t, err)
	assert.Equal(t, 8, remaining)

	ok, err := service.Consume("user-2", first[0])
	require.NoError(t, err)
	assert.False(t, ok, "codes from the replaced set must be dead")

	ok, err = service.Consume("user-2", second[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_DeleteAllIn(t *testing.T) {
	service, records := newTestService(t)
	enableUser(t, records, "user-3")

	codes, err := service.Generate()
	require.NoError(t, err)
	require.NoError(t, service.StoreCodesIn(service.db, "user-3", codes))

	require.NoError(t, service.DeleteAllIn(service.db, "user-3"))

	remaining, err := service.Remaining("user-3")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
