//go:build !windows

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// interactive 逐行读取命令并执行，quit/exit 或 EOF 退出。
func interactive(ctx context.Context, c executor, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			errCh <- err
		}
	}()

	for {
		fmt.Fprint(out, "xlock> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-errCh:
					return fmt.Errorf("读取输入: %w", err)
				default:
					return nil
				}
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}
			if err := execute(ctx, c, out, fields[0], fields[1:]); err != nil {
				fmt.Fprintf(out, "错误: %v\n", err)
			}
		}
	}
}
