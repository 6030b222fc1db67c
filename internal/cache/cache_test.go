package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(i int) CompileRecord {
	return CompileRecord{
		Hash:     Key(uint64(i)),
		Compiler: "/tc/gcc",
		Args:     []string{"-c", "-o", fmt.Sprintf("/o/%d.o", i), fmt.Sprintf("/src/%d.c", i)},
		Source:   fmt.Sprintf("/src/%d.c", i),
		Output:   fmt.Sprintf("/o/%d.o", i),
		DepFile:  fmt.Sprintf("/o/%d.d", i),
	}
}

func TestCompileDB_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFile)
	fp := Fingerprint{CC: "gcc 14.2", CXX: "g++ 14.2", AS: "gcc 14.2"}

	db := NewCompileDB()
	db.SetFingerprint(fp)
	for i := range 25 {
		db.Update(record(i))
	}

	require.NoError(t, db.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Len())
	assert.True(t, loaded.FingerprintMatches(fp))
	assert.Equal(t, db.Records(), loaded.Records())

	for i := range 25 {
		r, ok := loaded.Find(Key(uint64(i)))
		require.True(t, ok)
		assert.Equal(t, record(i).Args, r.Args)
	}
}

func TestCompileDB_SaveReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)

	first := NewCompileDB()
	first.Update(record(1))
	first.Update(record(2))
	require.NoError(t, first.Save(path))

	second := NewCompileDB()
	second.Update(record(3))
	require.NoError(t, second.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	_, ok := loaded.Find(Key(3))
	assert.True(t, ok)
}

func TestLoad_FailsSoft(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "missing file",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), DefaultFile)
			},
		},
		{
			name: "garbage file",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), DefaultFile)
				require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Load(tt.setup(t))
			assert.Error(t, err)
			require.NotNil(t, db)
			assert.Equal(t, 0, db.Len())
		})
	}
}

func TestCompileDB_FingerprintMatches(t *testing.T) {
	db := NewCompileDB()
	db.SetFingerprint(Fingerprint{CC: "gcc 14", CXX: "g++ 14", AS: "gcc 14"})

	assert.True(t, db.FingerprintMatches(Fingerprint{CC: "gcc 14", CXX: "g++ 14", AS: "gcc 14"}))
	assert.False(t, db.FingerprintMatches(Fingerprint{CC: "gcc 15", CXX: "g++ 14", AS: "gcc 14"}))
	assert.False(t, NewCompileDB().FingerprintMatches(db.Fingerprint()))
}

func TestCompileDB_UpdateSupersedes(t *testing.T) {
	db := NewCompileDB()
	db.Update(record(1))

	changed := record(1)
	changed.Args = append(changed.Args, "-O0")
	db.Update(changed)

	r, ok := db.Find(Key(1))
	require.True(t, ok)
	assert.Equal(t, changed.Args, r.Args)
	assert.Equal(t, 1, db.Len())
}

func TestCompileDB_MergeOld(t *testing.T) {
	old := NewCompileDB()
	old.Update(record(1))
	old.Update(record(2))

	current := NewCompileDB()
	fresh := record(2)
	fresh.Args = []string{"-new"}
	current.Update(fresh)

	current.MergeOld(old)
	current.MergeOld(nil)

	assert.Equal(t, 2, current.Len())
	r, _ := current.Find(Key(2))
	assert.Equal(t, []string{"-new"}, r.Args)
	_, ok := current.Find(Key(1))
	assert.True(t, ok)
}

func TestCompileDB_Snapshot(t *testing.T) {
	db := NewCompileDB()
	db.Update(record(1))

	snap := db.Snapshot()
	delete(snap, Key(1))

	assert.Equal(t, 1, db.Len())
}

func TestPathHash(t *testing.T) {
	assert.Equal(t, PathHash("/a/b.c"), PathHash("/a/b.c"))
	assert.NotEqual(t, PathHash("/a/b.c"), PathHash("/x/b.c"))
	assert.Equal(t, "00000000000000ff", Key(0xff))
}
