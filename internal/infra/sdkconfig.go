package infra

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SDKConfigValue returns the value of key in the project configuration
// file at path. A missing file or absent key returns "". The last
// occurrence of the key wins, and surrounding double quotes are excluded
// from the value.
func SDKConfigValue(path, key string) (string, error) {
	if !strings.HasPrefix(key, "CONFIG_") {
		return "", fmt.Errorf("sdkconfig key %q must start with CONFIG_", key)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	pattern, err := regexp.Compile(`^` + regexp.QuoteMeta(key) + `="?([^"]*)"?$`)
	if err != nil {
		return "", err
	}

	value := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := pattern.FindStringSubmatch(scanner.Text()); m != nil {
			value = m[1]
		}
	}
	return value, scanner.Err()
}

// TargetFromConfig returns the target declared in the named project
// configuration file under projectDir, or "" when not declared.
func TargetFromConfig(projectDir, filename string) (string, error) {
	return SDKConfigValue(filepath.Join(projectDir, filename), "CONFIG_IDF_TARGET")
}
