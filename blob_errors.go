package trifleachievements

import "fmt"

// saveError classifies a failed blob write. Backends detect their own
// out-of-space conditions and pass full=true.
func saveError(store BlobStore, key, data string, err error, full bool) error {
	if err == nil {
		return nil
	}
	if classified, ok := AsError(err); ok {
		return classified
	}
	if full {
		return NewQuotaExceededError(int64(len(data)), err)
	}
	return NewStorageError(fmt.Sprintf("%s: failed to save %q", store.Description(), key), err)
}

func loadError(store BlobStore, key string, err error) error {
	if classified, ok := AsError(err); ok {
		return classified
	}
	return NewStorageError(fmt.Sprintf("%s: failed to load %q", store.Description(), key), err)
}

func deleteError(store BlobStore, key string, err error) error {
	if classified, ok := AsError(err); ok {
		return classified
	}
	return NewStorageError(fmt.Sprintf("%s: failed to delete %q", store.Description(), key), err)
}
