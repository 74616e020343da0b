package validation

import (
	"context"

	"github.com/HendryAvila/hoofy-guard/internal/runner"
	"go.uber.org/zap"
)

// autoFix runs the fix variant for typ after a failed check. It returns nil
// when the type has no fix variant. The check result is left as is; the fix
// output is reported alongside it.
func (v *Validator) autoFix(ctx context.Context, typ string, opts Options, check runner.Request, log *zap.Logger) *FixResult {
	fix, ok := v.commands.Fix(typ)
	if !ok {
		log.Debug("no fix variant")
		return nil
	}

	req := check
	req.Command = v.commands.decorate(typ, fix, opts.ConfigFile, opts.Files)
	log = log.With(zap.String("fix_command", req.Command))

	res, err := v.runner.Run(ctx, req)
	fr := &FixResult{Command: req.Command, ExitCode: -1}
	if res != nil {
		fr.ExitCode = res.ExitCode
		fr.Output = res.Output()
		fr.DurationMs = res.Duration.Milliseconds()
	}

	if err != nil {
		fr.Error = err.Error()
	}

	if fr.Error != "" {
		log.Warn("auto-fix failed", zap.String("error", fr.Error))
	} else {
		log.Info("auto-fix ran", zap.Int("exit_code", fr.ExitCode))
	}
	return fr
}
