// Package config loads the keyward configuration.
//
// A YAML file is decoded over DefaultConfig, so every key is optional.
// Values may reference the environment as ${VAR} or ${VAR:-default}; $$
// yields a literal dollar. After decoding, KEYWARD_DISABLE_AUTH,
// KEYWARD_API_KEYS_FILE, KEYWARD_REQUIRE_SIGNATURE and KEYWARD_LOG_LEVEL
// override the file, and the result is validated.
package config
