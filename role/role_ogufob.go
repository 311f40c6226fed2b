//go:build ogufob

package role

const current = OGUFOB
