// accolade/cmd/accoladed/main.go

package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("accoladed failed")
		os.Exit(1)
	}
}
