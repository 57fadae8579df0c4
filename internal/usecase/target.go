// Package usecase contains application business logic.
package usecase

import (
	"fmt"
	"os"

	"github.com/embuild/embuild/internal/domain"
	"github.com/embuild/embuild/internal/infra"
)

const (
	sdkconfigFile         = "sdkconfig"
	sdkconfigDefaultsFile = "sdkconfig.defaults"

	// TargetEnvVar overrides the build target from the environment.
	TargetEnvVar = "IDF_TARGET"

	targetCacheKey = "IDF_TARGET"
)

// TargetResolver reconciles the effective build target from four candidate
// sources: the project configuration file, its defaults variant, the
// process environment and the persisted cache.
type TargetResolver struct {
	env func(string) string
}

// NewTargetResolver creates a resolver reading the real environment.
func NewTargetResolver() *TargetResolver {
	return &TargetResolver{env: os.Getenv}
}

// NewTargetResolverWithEnv creates a resolver with an injectable
// environment lookup (for tests).
func NewTargetResolverWithEnv(env func(string) string) *TargetResolver {
	return &TargetResolver{env: env}
}

// Resolve validates target consistency and, when the target can only be
// inferred from the project configuration, appends an IDF_TARGET entry to
// settings.DefineCacheEntries. The rules are checked in a fixed order and
// at most one conflict is reported per call.
func (r *TargetResolver) Resolve(settings *domain.Settings, prog string, cache domain.CacheSnapshot) error {
	fromConfig, err := infra.TargetFromConfig(settings.ProjectDir, sdkconfigFile)
	if err != nil {
		return err
	}
	fromConfigDefaults, err := infra.TargetFromConfig(settings.ProjectDir, sdkconfigDefaultsFile)
	if err != nil {
		return err
	}
	fromEnv := r.env(TargetEnvVar)
	fromCache, _ := cache.Get(targetCacheKey)

	switch {
	case len(cache) == 0 && fromEnv == "":
		// No persisted cache yet and no environment override: infer the
		// target and propose it to the configure step.
		guessed := fromConfig
		if guessed == "" {
			guessed = fromConfigDefaults
		}
		if guessed != "" {
			if settings.Verbose {
				fmt.Printf("%s is not set, guessed '%s' from sdkconfig\n", TargetEnvVar, guessed)
			}
			settings.DefineCacheEntries = append(settings.DefineCacheEntries, targetCacheKey+"="+guessed)
		}

	case fromEnv != "":
		if fromConfig != "" && fromConfig != fromEnv {
			return domain.NewTargetConflict(
				fmt.Sprintf("Project sdkconfig was generated for target '%s', but environment variable %s is set to '%s'.",
					fromConfig, TargetEnvVar, fromEnv),
				fmt.Sprintf("Run '%s set-target %s' to generate new sdkconfig file for target %s.",
					prog, fromEnv, fromEnv))
		}
		if fromCache != "" && fromCache != fromEnv {
			return domain.NewTargetConflict(
				fmt.Sprintf("Target settings are not consistent: '%s' in the environment, '%s' in the build cache.",
					fromEnv, fromCache),
				fmt.Sprintf("Run '%s fullclean' to start again.", prog))
		}

	case fromCache != "" && fromConfig != "" && fromCache != fromConfig:
		// Only possible when sdkconfig or the cache was edited by hand,
		// but checked anyway. Both remediations are reported; neither is
		// picked automatically.
		return domain.NewTargetConflict(
			fmt.Sprintf("Project sdkconfig was generated for target '%s', but the build cache contains '%s'.",
				fromConfig, fromCache),
			fmt.Sprintf("To keep the setting in sdkconfig (%s) and re-generate the cache, run '%s fullclean'. "+
				"To re-generate sdkconfig for '%s' target, run '%s set-target %s'.",
				fromConfig, prog, fromCache, prog, fromCache))
	}
	return nil
}
