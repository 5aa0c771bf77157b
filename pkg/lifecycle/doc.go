// Package lifecycle provides the content-lifecycle engine of a CMIS-style
// content repository with pluggable repository and blob storage backends.
//
// It exposes a single Service interface that orchestrates creation, update,
// move and deletion of documents, folders, relationships, policies and
// items. Documents are versioned through check-out and check-in; effective
// ACLs are computed by merging each ancestor's entries down to the object;
// every mutation appends one change to a per-repository log with strictly
// increasing numeric tokens; deletions are archived and can be restored.
// Repositories (memory, Postgres), blob stores (memory, filesystem, S3) and
// a distributed change log lock (Redis) are provided under subpackages.
//
// Change Tokens
//
// The next token is derived from the latest stored change, so assignment is
// serialized per repository through a Locker. The default LocalLocker is
// only correct when one process writes to the store.
package lifecycle
