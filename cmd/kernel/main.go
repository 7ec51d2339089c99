// Command kernel is the reference boot sequence spec.md §2 describes: it
// decodes a boot manifest, brings up the allocator/paging/trap/device/
// filesystem layers in order, spawns an init task, and runs one executor
// hart goroutine per configured hart until asked to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joeycumines/go-rvkernel/internal/bootcfg"
	"github.com/joeycumines/go-rvkernel/internal/devmgr"
	"github.com/joeycumines/go-rvkernel/internal/exec"
	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/khart"
	"github.com/joeycumines/go-rvkernel/internal/klog"
	"github.com/joeycumines/go-rvkernel/internal/paging"
	"github.com/joeycumines/go-rvkernel/internal/task"
	"github.com/joeycumines/go-rvkernel/internal/trap"
	"github.com/joeycumines/go-rvkernel/internal/vfs"
	"github.com/joeycumines/go-rvkernel/internal/virt"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "kernel",
		Short: "RISC-V64 experimental kernel core reference harness",
		Long: `kernel boots a simulated RISC-V64 kernel core: a stackless-coroutine-
style task scheduler, a dual-mode trap architecture, a tree-structured
copy-on-write physical page cache, and a lazily-committed address-space
manager, driven entirely in userspace Go for development and testing.`,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "boot.toml", "path to the boot manifest")

	root.AddCommand(&cobra.Command{
		Use:   "probe-config",
		Short: "decode and validate a boot manifest without booting",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := bootcfg.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "harts=%d heap_frames=%d devices=%d\n", m.Harts, m.HeapFrames, len(m.Devices))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "boot the kernel core and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	log := klog.New(os.Stdout, klog.LevelInfo)

	manifest, err := bootcfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("kernel: %w", err)
	}

	alloc := kalloc.NewFrameAllocator(manifest.HeapFrames)
	fencer := paging.NewFencer(log)

	devices := devmgr.New()
	initialized, unresolved, err := devmgr.Probe(log, devices, manifest.DeviceTree())
	if err != nil {
		return fmt.Errorf("kernel: device probe: %w", err)
	}
	log.Info("device probe complete", klog.Int("initialized", initialized), klog.Int("unresolved", len(unresolved)))

	root := vfs.NewDir("")
	dev := vfs.NewDir("dev")
	if err := root.AddChild(dev); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	if err := dev.AddChild(vfs.NewDevice("console", vfs.NewConsole(os.Stdout))); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}

	ex := exec.New(manifest.Harts, log)

	initTask, err := spawnInit(alloc, fencer, root)
	if err != nil {
		return fmt.Errorf("kernel: spawn init: %w", err)
	}
	ex.Spawn(0, virt.WithLoadedAddressSpace(0, initTask.State.Space, initTask))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for id := 0; id < manifest.Harts; id++ {
		wg.Add(1)
		go func(id khart.ID) {
			defer wg.Done()
			unpin := khart.Pin(id)
			defer unpin()
			ex.Run(ctx, id)
		}(khart.ID(id))
	}

	<-ctx.Done()
	log.Info("shutdown requested, draining harts")
	wg.Wait()
	ex.Close()
	return nil
}

// spawnInit builds the reference init task: it has no real ELF image to
// load (a concrete loader is out of scope, per spec.md §1), so its
// "user program" is a fixed script that issues a single sys_exit(0)
// ecall -- enough to exercise the full ecall -> syscallreg -> task-exit
// path end to end.
func spawnInit(alloc *kalloc.FrameAllocator, fencer *paging.Fencer, root *vfs.Node) (*task.Task, error) {
	space, err := virt.New(alloc, fencer)
	if err != nil {
		return nil, err
	}

	consoleNode, err := vfs.Resolve(root, "/dev/console")
	if err != nil {
		return nil, err
	}
	files := vfs.NewFileTable()
	files.Open(consoleNode) // fd 0: stdin placeholder
	files.Open(consoleNode) // fd 1: stdout

	info := task.NewInfo(1, nil)
	rendezvous := trap.NewRendezvous(nil)
	state := task.NewState(info, rendezvous, space, task.NewActions(), files)

	t := task.NewTask(1, state, newSyscallTable(), &initProgram{})
	return t, nil
}

// initProgram drives the init task's single trap: a sys_exit(0) ecall.
// A real boot would instead run loaded user code until its first trap;
// loading a concrete ELF image is out of scope here.
type initProgram struct{}

func (p *initProgram) Run(tf *trap.TrapFrame) {
	tf.Scause = trap.CauseUserEcall
	tf.A[7] = sysExit
	tf.A[0] = 0
}
