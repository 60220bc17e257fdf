package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

func TestKeyLayout(t *testing.T) {
	tests := map[string]struct {
		namespace string
		key       string
		stored    string
	}{
		"service namespace": {
			namespace: common.ServiceName,
			key:       models.CursorKey("contacts"),
			stored:    common.ServiceName + ":" + models.CursorKey("contacts"),
		},
		"no namespace": {
			namespace: "",
			key:       models.CursorKey("contacts"),
			stored:    models.CursorKey("contacts"),
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			store := NewKvStore(nil, test.namespace)
			assert.Equal(t, test.stored, store.namespaced(test.key))
			assert.Equal(t, test.key, store.unnamespaced(store.namespaced(test.key)))
		})
	}
}
