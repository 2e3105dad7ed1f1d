// Package service runs package manager commands and keeps the list of
// installed packages.
//
// Overview
//
// Exec runs one model.Command per task.Task and is safe for concurrent use,
// which is what listing versions of many packages needs. Runner wraps it and
// allows one command at a time, as the actions of a package window do:
// Start fails with ErrCommandInProgress, Run waits for its turn.
//
// Catalog is the table data source. It queries the package manager through
// a brew.Client and holds rows of model.Package.
//
// Supervisor owns an event loop, performs operations on the Catalog one by
// one and exports a JSON snapshot after each successful one.
//
// Data flow:
//
//	Supervisor        Catalog          brew.Client        Exec/Runner        task.Task
//	    |  Op            |                  |                  |                 |
//	    |--------------->| Installed() ---->| Run(list) ------>| New + Launch -->| fork/exec
//	    |                |                  |<----- Result ----|<-- completion --| exit
//	    |<-- snapshot ---|                  |                  |                 |
//	    | Export()       |                  |                  |                 |
//
// Modes:
//   - manual: one refresh, export, return (oneshot)
//   - timer: gocron triggers update followed by refresh until ctx is done
//
// Invariants:
//   - At most one Runner command at a time.
//   - Each command produces one Result, its Err is the wait error.
//   - Stdout and stderr are captured completely, streaming is optional.
//   - Each command can define own timeout, after which it gets killed.
package service
