package db

// UpsertResult reports what a restore-or-create write did to the target row.
type UpsertResult string

const (
	UpsertCreated   UpsertResult = "created"
	UpsertRestored  UpsertResult = "restored"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// Changed reports whether the write touched storage.
func (r UpsertResult) Changed() bool {
	return r != UpsertUnchanged && r != ""
}
