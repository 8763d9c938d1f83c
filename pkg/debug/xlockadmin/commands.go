package xlockadmin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/omeyang/xlock/pkg/debug/xdbg"
)

// Commands 调试命令集合，注册到 xdbg.Server。
func (a *Admin) Commands() []xdbg.Command {
	return []xdbg.Command{
		xdbg.NewCommand("locks", "当前锁及创建现场", a.cmdLocks),
		xdbg.NewCommand("lockstat", "锁统计 (lockstat [reset])", a.cmdStat),
		xdbg.NewCommand("lockconf", "查看或修改锁配置 (lockconf [name value])", a.cmdConf),
		xdbg.NewCommand("lockdisable", "禁用锁，等待者不持锁继续 (lockdisable <key>)", a.cmdDisable),
		xdbg.NewCommand("listeners", "监听器与熔断状态", a.cmdListeners),
	}
}

func (a *Admin) cmdLocks(_ context.Context, _ []string) (string, error) {
	locks := a.Locks()
	if len(locks) == 0 {
		return "no locks\n", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d locks\n", len(locks))
	for _, s := range locks {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (a *Admin) cmdStat(_ context.Context, args []string) (string, error) {
	if len(args) > 0 {
		if args[0] != "reset" {
			return "", fmt.Errorf("%w: lockstat [reset]", xdbg.ErrUsage)
		}
		a.Reset()
		return "stats reset\n", nil
	}
	return marshal(a.Stats())
}

// confSetters lockconf 可写的配置项
func (a *Admin) confSetters() map[string]func(string) error {
	boolSetter := func(set func(bool)) func(string) error {
		return func(s string) error {
			v, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			set(v)
			return nil
		}
	}
	return map[string]func(string) error{
		"strict_compatibility":  boolSetter(a.SetStrictlyOne),
		"monitored_acquire":     boolSetter(a.SetMonitor),
		"max_lock_acquire_time": a.SetMaxLockAcquireTime,
		"min_poll_interval":     a.SetMinPollInterval,
		"warn_hold_time":        a.SetWarnHoldTime,
	}
}

func (a *Admin) cmdConf(_ context.Context, args []string) (string, error) {
	switch len(args) {
	case 0:
		return marshal(a.ConfigMap())
	case 2:
		setters := a.confSetters()
		set, ok := setters[args[0]]
		if !ok {
			names := make([]string, 0, len(setters))
			for n := range setters {
				names = append(names, n)
			}
			slices.Sort(names)
			return "", fmt.Errorf("%w: unknown setting %q, one of %s", xdbg.ErrUsage, args[0], strings.Join(names, ", "))
		}
		if err := set(args[1]); err != nil {
			return "", err
		}
		a.logger.Info(context.Background(), "lock setting changed",
			slog.String("setting", args[0]), slog.String("value", args[1]))
		return fmt.Sprintf("%s = %s\n", args[0], args[1]), nil
	default:
		return "", fmt.Errorf("%w: lockconf [name value]", xdbg.ErrUsage)
	}
}

func (a *Admin) cmdDisable(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: lockdisable <key>", xdbg.ErrUsage)
	}
	var disabled int
	for _, k := range a.locker.Keys() {
		if fmt.Sprint(k) == args[0] && a.locker.Disable(k) {
			disabled++
		}
	}
	if disabled == 0 {
		return "", fmt.Errorf("xlockadmin: no lock with key %q", args[0])
	}
	return fmt.Sprintf("disabled %d lock(s) for %q\n", disabled, args[0]), nil
}

func (a *Admin) cmdListeners(_ context.Context, _ []string) (string, error) {
	return marshal(a.locker.Listeners())
}

func marshal(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}
