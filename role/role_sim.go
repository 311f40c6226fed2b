//go:build !car && !ogpfob && !ogufob

// No build role was selected; default to OG-UFOB so unit tests exercise
// the most permissive path (pairable, then paired) without a build tag.
package role

const current = OGUFOB
