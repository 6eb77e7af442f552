/*
Package api is Stratum's external HTTP surface (spec.md §6): register a
task, list or fetch tasks and batches, and report health and Prometheus
metrics. Every mutating endpoint does exactly one thing — decode a request
into a types.Content, register it, and wake the scheduler — the actual work
happens later on the run loop, never inline with the HTTP request.

Unlike the teacher's gRPC/mTLS cluster-node API, this surface is plain JSON
over net/http.ServeMux: there is no multi-node membership to authenticate
between, so the heavier transport buys nothing here.

# Routes

	POST   /indexes                                create an index
	PATCH  /indexes/{indexUid}                      update its primary key
	DELETE /indexes/{indexUid}                      delete it
	POST   /indexes/{indexUid}/compact              compact an index (sync to disk)
	PATCH  /indexes/{indexUid}/settings              apply a settings patch
	DELETE /indexes/{indexUid}/settings              reset to defaults
	POST   /indexes/{indexUid}/documents             add or update documents
	POST   /indexes/{indexUid}/documents/delete-batch delete documents by id
	POST   /indexes/{indexUid}/documents/delete      delete documents by filter
	DELETE /indexes/{indexUid}/documents             clear all documents
	POST   /swap-indexes                            atomically swap indexes
	POST   /tasks/cancel                            cancel matching tasks
	POST   /tasks/delete                            delete matching tasks
	GET    /tasks                                   list tasks
	GET    /tasks/{uid}                              fetch one task
	GET    /batches                                 list batches
	GET    /batches/{uid}                            fetch one batch
	GET    /stats                                   queue occupancy by status
	POST   /dumps                                   create a dump
	POST   /snapshots                               create a snapshot
	GET    /health, /ready, /live                   health probes
	GET    /metrics                                 Prometheus exposition

Every mutating route responds 202 Accepted with a types.RegisterResponse;
the task's eventual outcome is only visible by polling GET /tasks/{uid} or
subscribing a webhook (pkg/webhook).
*/
package api
