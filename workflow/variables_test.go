package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/flowcore/types"
)

func TestVariableStore_SetGet(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, s.Set("a", "one"))
	require.NoError(t, s.Set("b", 2))

	v, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "one", v)
	assert.Equal(t, []string{"a", "b"}, s.Keys())
	assert.Equal(t, 2, s.Len())
}

func TestVariableStore_DuplicateWrite(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, s.Set("a", "one"))

	err := s.Set("a", "two")
	require.Error(t, err)
	assert.Equal(t, types.ErrDuplicateWrite, types.GetErrorCode(err))

	v, _ := s.Get("a")
	assert.Equal(t, "one", v, "first write must survive")
	assert.Equal(t, 1, s.Len())
}

func TestVariableStore_Missing(t *testing.T) {
	_, err := NewVariableStore().Get("nope")
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingVariable, types.GetErrorCode(err))
}

func TestVariableStore_SnapshotIsCopy(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, s.Set("a", 1))
	snap := s.Snapshot()
	snap["b"] = 2
	_, ok := s.Lookup("b")
	assert.False(t, ok)
}

// Whatever sequence of writes happens, each id holds its first value and
// appears once in commit order.
func TestProperty_VariableStoreWriteOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d", "e"}), 0, 30).Draw(t, "ids")
		s := NewVariableStore()
		first := map[string]string{}
		var order []string

		for i, id := range ids {
			value := fmt.Sprintf("%s-%d", id, i)
			err := s.Set(id, value)
			if _, seen := first[id]; seen {
				if !types.IsCode(err, types.ErrDuplicateWrite) {
					t.Fatalf("second write of %q: got %v", id, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("first write of %q: %v", id, err)
			}
			first[id] = value
			order = append(order, id)
		}

		if got := s.Keys(); fmt.Sprint(got) != fmt.Sprint(order) {
			t.Fatalf("order %v, want %v", got, order)
		}
		for id, want := range first {
			if got, _ := s.Get(id); got != want {
				t.Fatalf("%q = %v, want %v", id, got, want)
			}
		}
	})
}
