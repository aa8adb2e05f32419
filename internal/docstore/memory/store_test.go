package memory

import (
	"testing"

	"github.com/odyssey-erp/bookkeeping/internal/docstore"
	"github.com/odyssey-erp/bookkeeping/internal/docstore/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		return New()
	})
}
