// Package lgledger contains the core types shared by the ledger client:
// requests, node replies, submission outcomes, and the error taxonomy.
//
// Other lg packages build on these types:
// [github.com/gordian-engine/gledger/lg/lgrequest] builds requests,
// [github.com/gordian-engine/gledger/lg/lgsign] signs them,
// and [github.com/gordian-engine/gledger/lg/lgsubmit] broadcasts them
// to a pool and reduces the node replies into an [Outcome].
package lgledger
