package kthread

import "fmt"

// Key names a thread-local slot. The key space is fixed at compile time so
// slot storage can be allocated all at once.
type Key int

const (
	KeyComErr Key = iota
	KeyGSSKrb5SetCCacheOldName
	KeyGSSKrb5CCacheName

	// KeyMax is the number of keys, not a usable key.
	KeyMax
)

var keyNames = [KeyMax]string{
	KeyComErr:                  `com_err`,
	KeyGSSKrb5SetCCacheOldName: `gss_krb5_set_ccache_old_name`,
	KeyGSSKrb5CCacheName:       `gss_krb5_ccache_name`,
}

func (k Key) Valid() bool { return k >= 0 && k < KeyMax }

func (k Key) String() string {
	if !k.Valid() {
		return fmt.Sprintf(`Key(%d)`, int(k))
	}
	return keyNames[k]
}
