package manifest

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/zorak1103/tcfleet/internal/sanitize"
)

// EnvVars flattens the manifest into connection variables:
//
//	<PREFIX>_<KEY>_IP, <PREFIX>_<KEY>_NAME and <PREFIX>_<KEY>_PORT_<containerPort>
//
// KEY is the service key passed through sanitize.EnvKey.
func (m *Manifest) EnvVars(prefix string) map[string]string {
	vars := make(map[string]string, len(m.Services)*3)
	for key, svc := range m.Services {
		base := prefix + "_" + sanitize.EnvKey(key)
		vars[base+"_IP"] = svc.IP
		vars[base+"_NAME"] = svc.Name
		for p, hp := range svc.Ports {
			vars[base+"_PORT_"+strconv.Itoa(p)] = strconv.Itoa(hp)
		}
	}
	return vars
}

// Environ returns EnvVars as sorted KEY=VALUE pairs for exec.Cmd.Env.
func (m *Manifest) Environ(prefix string) []string {
	vars := m.EnvVars(prefix)
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// WriteEnvFile writes EnvVars to filePath in dotenv format, atomically.
func (m *Manifest) WriteEnvFile(filePath, prefix string) error {
	content, err := godotenv.Marshal(m.EnvVars(prefix))
	if err != nil {
		return fmt.Errorf("failed to render env file %s: %w", filePath, err)
	}
	return writeAtomic(filePath, []byte(content+"\n"), "env-*.tmp")
}
