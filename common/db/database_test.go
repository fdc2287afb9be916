package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icon-project/goagree/common/errors"
)

func testBucket(t *testing.T, testDB Database) {
	key := []byte("hello")
	value := []byte("world")

	bucket, err := testDB.GetBucket(ChainProperty)
	require.NoError(t, err)

	ok, err := bucket.Has(key)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, bucket.Set(key, value))
	result, err := bucket.Get(key)
	assert.NoError(t, err)
	assert.Equal(t, value, result)
	ok, err = bucket.Has(key)
	assert.NoError(t, err)
	assert.True(t, ok)

	other, err := testDB.GetBucket(CommitByHeight)
	require.NoError(t, err)
	result, err = other.Get(key)
	assert.NoError(t, err)
	assert.Nil(t, result)

	assert.NoError(t, bucket.Delete(key))
	_, err = DoGet(bucket, key)
	assert.True(t, errors.NotFoundError.Equals(err))
}

func TestMapDB_Database(t *testing.T) {
	testDB, err := openDatabase(MapDBBackend, "", "")
	require.NoError(t, err)
	defer testDB.Close()

	testBucket(t, testDB)
}

func TestGoLevelDB_Database(t *testing.T) {
	testDB, err := Open(t.TempDir(), string(GoLevelDBBackend), "test")
	require.NoError(t, err)
	defer testDB.Close()

	testBucket(t, testDB)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(t.TempDir(), "rocksdb", "test")
	assert.True(t, errors.IllegalArgumentError.Equals(err))
	assert.Equal(t, []string{"goleveldb", "mapdb"}, RegisteredBackendTypes())
}

func TestInt64Key_Order(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 10}, Int64Key(10))
	assert.Less(t, string(Int64Key(9)), string(Int64Key(256)))
}
