// Package explorer resolves block explorer routes.
package explorer

// TransactionPathPrefix is the explorer route for a single transaction.
const TransactionPathPrefix = "/blockexplorer/transaction/"

// ResolveExplorerURL returns the explorer path for a transaction hash.
// It does no network access and no validation of the hash.
func ResolveExplorerURL(txHash string) string {
	return TransactionPathPrefix + txHash
}
