/*
Package dataloader provides an implementation of the
data loader pattern, which is useful for batching up requests
to a database rather than making a large number of small queries.
The dataloader pattern is particularly useful when implementing
GraphQL servers.

A Loader accepts load requests and returns a "thunk" for each one.
A thunk is a function that, when called, returns the value associated
with the request (or an error):
 thunk := loader.Load(dataloader.Request{
	 Batch: "user",
	 ID:    "user:42",
	 Key:   42,
 }, fetchUsers)

 // ... more calls to loader.Load ...

 user, err := thunk()

Requests with the same Batch are collected into one batch, and the
batch function is called once for all of them. Requests with the same
ID are the same request: the batch function sees the key only once,
and every thunk for the ID receives the same result.

Batches

A batch is open until it is dispatched. There are three ways a batch
is dispatched:

 - Flush dispatches every open batch and waits for them to settle.
 - Calling a thunk whose batch is still open calls Flush.
 - If Config.Wait is non-zero, each batch dispatches itself once the
   wait period has elapsed after its first request was added. Calling
   a thunk waits for the batch rather than flushing it early.

The first mode is the natural fit for breadth-first executors that
create all of the thunks for one level before calling any of them.
The wait period is useful when requests arrive from many goroutines.

Batch Functions

A batch function accepts a slice of keys and returns one Result per
key, in the same order as the keys. A zero Result means that nothing
was found for the key. A Result with a non-nil Err is an error for
that key only.

If the batch function returns an error, every request in the batch
receives the error. Batch errors are not cached, so a later request
for the same ID starts a new batch.

Cache

Results are cached by ID for the lifetime of the Loader. A request
for a cached ID returns a thunk for the cached result without joining
a batch. The cache is written before any thunk in the batch returns.
Entries can be added with Prime and removed with Clear and ClearAll.
*/
package dataloader
