package config

import (
	"os"

	"github.com/rowjay/cassandra-maint-utility/internal/cryptoutil"
)

// EncryptConfigFile seals a plaintext config file for distribution as
// <name>.enc. Load decrypts such files transparently when
// CMU_CONFIG_KEY carries the key.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.EncryptConfig(plain, parsed)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, ciphertext, 0o600)
}
