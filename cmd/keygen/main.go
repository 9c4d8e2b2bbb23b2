// Command keygen writes fresh access and refresh RSA key pairs to the paths
// the server reads them from.
package main

import (
	"flag"
	"os"

	"github.com/erpcore/erp/internal/config"
	"github.com/erpcore/erp/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	bits := flag.Int("bits", 2048, "RSA key size in bits")
	force := flag.Bool("force", false, "overwrite existing key files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	paths := []string{
		cfg.Keys.PrivateAccessKey,
		cfg.Keys.PublicAccessKey,
		cfg.Keys.PrivateRefreshKey,
		cfg.Keys.PublicRefreshKey,
	}
	if !*force {
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				logger.WithField("path", p).Fatal("Key file exists, pass -force to overwrite")
			}
		}
	}

	km, err := service.GenerateKeyMaterial(*bits)
	if err != nil {
		logger.WithError(err).Fatal("Failed to generate keys")
	}
	if err := service.WriteKeyMaterial(km, &cfg.Keys); err != nil {
		logger.WithError(err).Fatal("Failed to write keys")
	}

	for _, p := range paths {
		logger.WithField("path", p).Info("Key written")
	}
}
