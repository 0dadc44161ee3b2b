package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomView struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func TestJSONSerializer(t *testing.T) {
	var s Serializer = JSONSerializer{}

	data, err := s.Marshal(roomView{Name: "default", Members: []string{"alice"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"default","members":["alice"]}`, string(data))

	var got roomView
	require.NoError(t, s.Unmarshal(data, &got))
	assert.Equal(t, "default", got.Name)

	assert.Error(t, s.Unmarshal([]byte("{"), &got))
}
