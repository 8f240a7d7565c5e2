package inputs

import "github.com/zalando/go-keyring"

// keyringService namespaces paramctl entries in the OS keyring.
const keyringService = "paramctl"

// SystemKeyring caches resolved input values in the OS credential store.
type SystemKeyring struct{}

func (SystemKeyring) Get(name string) (string, error) {
	return keyring.Get(keyringService, name)
}

func (SystemKeyring) Set(name, value string) error {
	return keyring.Set(keyringService, name, value)
}
