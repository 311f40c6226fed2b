//go:build ogpfob

package role

const current = OGPFOB
