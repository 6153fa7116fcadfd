package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex"
	"github.com/kailas-cloud/docdex/internal/config"
	logpkg "github.com/kailas-cloud/docdex/internal/logger"
)

// defineKinds registers the configured kinds on reg.
func defineKinds(reg *docdex.Registry, kinds []config.KindConfig, logger *zap.Logger) error {
	for _, kc := range kinds {
		decls := make([]docdex.Declaration, 0, len(kc.Properties))
		for _, pc := range kc.Properties {
			decls = append(decls, docdex.Prop(pc.Name, propertyOptions(pc)...))
		}
		if _, err := reg.Define(kc.Name, kc.Index, kc.Type, decls...); err != nil {
			return fmt.Errorf("define %s: %w", kc.Name, err)
		}
		logger.Info("Registered kind",
			logpkg.Kind(kc.Index, kc.Type, kc.Name),
			zap.Int("properties", len(kc.Properties)),
		)
	}
	return nil
}

func propertyOptions(pc config.PropertyConfig) []docdex.PropertyOption {
	var opts []docdex.PropertyOption
	if pc.Field != "" {
		opts = append(opts, docdex.Field(pc.Field))
	}
	if pc.Indexed != "" {
		opts = append(opts, docdex.Indexed(docdex.FieldType(pc.Indexed)))
	}
	if pc.PrimaryKey {
		opts = append(opts, docdex.PrimaryKey())
	}
	if pc.Default != nil {
		opts = append(opts, docdex.Default(pc.Default))
	}
	return opts
}
