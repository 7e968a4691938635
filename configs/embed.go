// Package configs provides the embedded configuration template written
// by 'knowbase init'. Embedding keeps the template available in every
// distribution of the binary.
package configs

import _ "embed"

// ConfigTemplate is the annotated starting config. Defaults here must
// stay in sync with internal/config NewConfig.
//
//go:embed knowbase.example.yaml
var ConfigTemplate string
