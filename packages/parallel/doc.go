// Package parallel spreads the iterations of a project run over a pool of
// workers.
//
// Workers share nothing with the orchestrator or with each other. Each one
// owns its cookie jar, variables and project runner; the only link is a
// newline-delimited JSON message stream:
//
//	{"cmd":"online"}
//	{"cmd":"run","data":{"project":{...},"iterations":3,"options":{...}}}
//	{"cmd":"result","data":[{"index":0,"executed":[...]}]}
//	{"cmd":"error","data":"message"}
//
// Workers are started by a Spawner. GoroutineSpawner runs them in process
// over pipes; ProcessSpawner starts the hitrun binary with its hidden worker
// command and talks to it over stdin and stdout.
package parallel
