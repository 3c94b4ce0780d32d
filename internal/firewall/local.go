/**
 * Local Command Runner.
 *
 * Executes firewall commands as local subprocesses, the no-remote-host
 * branch of the actuator's command runner.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package firewall

import (
	"bytes"
	"os/exec"
	"strings"
)

type localRunner struct{}

func (localRunner) Run(cmd string) (stdout, stderr string, exitCode int, err error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", "", 1, nil
	}

	c := exec.Command(fields[0], fields[1:]...)
	var outBuf, errBuf bytes.Buffer
	c.Stdout = &outBuf
	c.Stderr = &errBuf

	runErr := c.Run()
	code := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		runErr = nil
	} else if runErr != nil {
		code = 1
	}
	return outBuf.String(), errBuf.String(), code, runErr
}
