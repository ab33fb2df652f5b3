// Package identity resolves the local actor from the session token so
// the view layer can attribute messages as mine or theirs.
package identity
