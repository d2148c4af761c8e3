package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/udpFileCourier/pkg/client"
	"github.com/rescp17/udpFileCourier/pkg/codec"
	"github.com/rescp17/udpFileCourier/pkg/discovery"
	"github.com/rescp17/udpFileCourier/pkg/protocol"
	"github.com/rescp17/udpFileCourier/pkg/server"
	"github.com/rescp17/udpFileCourier/pkg/storage"
)

type options struct {
	port       int
	cipherName string
	keyHex     string
	ivHex      string
	logFile    string

	serverHost   string
	discover     bool
	storageDir   string
	backupDir    string
	announce     bool
	instanceName string
	maxHandlers  int
}

func (o *options) setupLogging() (func(), error) {
	if o.logFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(o.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", o.logFile, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	return func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}, nil
}

func (o *options) buildCipher() (codec.Cipher, error) {
	switch o.cipherName {
	case "xor":
		return codec.NewXORCipher(), nil
	case "aes":
		if o.keyHex == "" || o.ivHex == "" {
			return nil, errors.New("the aes cipher requires --key and --iv (hex)")
		}
		key, err := hex.DecodeString(o.keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --key: %w", err)
		}
		iv, err := hex.DecodeString(o.ivHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --iv: %w", err)
		}
		return codec.NewAESCipher(key, iv)
	default:
		return nil, fmt.Errorf("unknown cipher %q (want xor or aes)", o.cipherName)
	}
}

func (o *options) buildEngine() (*protocol.Engine, error) {
	cipher, err := o.buildCipher()
	if err != nil {
		return nil, err
	}
	return protocol.NewEngine(protocol.DefaultConfig(), cipher)
}

// resolveServer returns the host:port to talk to, browsing mDNS for an
// announced courier when --discover is set.
func (o *options) resolveServer(ctx context.Context) (string, error) {
	if !o.discover {
		return fmt.Sprintf("%s:%d", o.serverHost, o.port), nil
	}
	browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	found, err := (&discovery.MDNSAdapter{}).Discover(browseCtx, discovery.DefaultServiceType)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", errors.New("no courier server found on the local network")
	}
	svc := found[0]
	fmt.Printf("Discovered server %q at %s:%d\n", svc.Name, svc.Addr, svc.Port)
	return fmt.Sprintf("%s:%d", svc.Addr, svc.Port), nil
}

// withManualRetry runs op and, when the server never acknowledges, asks
// the operator whether to start another bounded retry round. The decision
// lives here, not in the protocol engine.
func withManualRetry(op func() error) error {
	in := bufio.NewReader(os.Stdin)
	for {
		err := op()
		if !errors.Is(err, protocol.ErrPeerSilent) {
			return err
		}
		fmt.Print("No acknowledgment from server. Retry? [y/N]: ")
		answer, readErr := in.ReadString('\n')
		if readErr != nil || !strings.HasPrefix(strings.TrimSpace(strings.ToLower(answer)), "y") {
			return err
		}
	}
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the file courier server",
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := opts.setupLogging()
			if err != nil {
				return err
			}
			defer closeLog()

			engine, err := opts.buildEngine()
			if err != nil {
				return err
			}
			store := storage.New(opts.storageDir, opts.backupDir)
			if err := store.EnsureDirs(); err != nil {
				return err
			}

			srv := server.New(engine, store, opts.maxHandlers)
			if err := srv.Listen(fmt.Sprintf(":%d", opts.port)); err != nil {
				return err
			}

			ctx := cmd.Context()
			if opts.announce {
				name := opts.instanceName
				if name == "" {
					name, _ = os.Hostname()
				}
				go func() {
					err := (&discovery.MDNSAdapter{}).Announce(ctx, discovery.ServiceInfo{
						Name:   name,
						Type:   discovery.DefaultServiceType,
						Domain: discovery.DefaultDomain,
						Port:   opts.port,
					})
					if err != nil {
						slog.Warn("mDNS announcement failed", "error", err)
					}
				}()
			}

			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.storageDir, "storage-dir", "./server_files", "Directory holding served files")
	cmd.Flags().StringVar(&opts.backupDir, "backup-dir", "./backup_files", "Directory receiving versioned upload backups")
	cmd.Flags().BoolVar(&opts.announce, "announce", false, "Announce the server over mDNS")
	cmd.Flags().StringVar(&opts.instanceName, "name", "", "mDNS instance name (defaults to hostname)")
	cmd.Flags().IntVar(&opts.maxHandlers, "max-concurrent", 16, "Maximum concurrent request handlers")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get FILENAME",
		Short: "Download a file from the server (RRQ)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := opts.setupLogging()
			if err != nil {
				return err
			}
			defer closeLog()

			engine, err := opts.buildEngine()
			if err != nil {
				return err
			}
			addr, err := opts.resolveServer(cmd.Context())
			if err != nil {
				return err
			}
			localPath := out
			if localPath == "" {
				localPath = args[0]
			}
			c := client.New(addr, engine)
			return withManualRetry(func() error {
				n, err := c.Download(args[0], localPath)
				if err != nil {
					return err
				}
				fmt.Printf("Downloaded %s (%d bytes)\n", localPath, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Local path for the downloaded file (defaults to the remote name)")
	return cmd
}

func newPutCmd(opts *options) *cobra.Command {
	var remoteName string
	cmd := &cobra.Command{
		Use:   "put FILE",
		Short: "Upload a file to the server (WRQ)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := opts.setupLogging()
			if err != nil {
				return err
			}
			defer closeLog()

			engine, err := opts.buildEngine()
			if err != nil {
				return err
			}
			addr, err := opts.resolveServer(cmd.Context())
			if err != nil {
				return err
			}
			name := remoteName
			if name == "" {
				name = args[0]
			}
			c := client.New(addr, engine)
			return withManualRetry(func() error {
				n, err := c.Upload(args[0], name)
				if err != nil {
					return err
				}
				fmt.Printf("Uploaded %s as %s (%d bytes)\n", args[0], name, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&remoteName, "as", "", "Name to store the file under (defaults to the local name)")
	return cmd
}

func newDelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "del FILENAME",
		Short: "Delete a file on the server (DEL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := opts.setupLogging()
			if err != nil {
				return err
			}
			defer closeLog()

			engine, err := opts.buildEngine()
			if err != nil {
				return err
			}
			addr, err := opts.resolveServer(cmd.Context())
			if err != nil {
				return err
			}
			c := client.New(addr, engine)
			return withManualRetry(func() error {
				status, err := c.Delete(args[0])
				if err != nil {
					return err
				}
				fmt.Println(status)
				return nil
			})
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate AES key material for --cipher aes",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, iv, err := codec.GenerateKeyMaterial()
			if err != nil {
				return err
			}
			fmt.Printf("key: %s\niv:  %s\n", hex.EncodeToString(key), hex.EncodeToString(iv))
			return nil
		},
	}
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "udpcourier",
		Short: "Reliable file transfer over UDP",
		Long: "udpcourier moves files over plain UDP datagrams with a " +
			"retry-with-timeout acknowledgment discipline, per-chunk integrity " +
			"checks and optional payload encryption.",
	}
	cmd.PersistentFlags().IntVar(&opts.port, "port", server.DefaultPort, "Server port")
	cmd.PersistentFlags().StringVar(&opts.serverHost, "server", "127.0.0.1", "Server host")
	cmd.PersistentFlags().BoolVar(&opts.discover, "discover", false, "Locate the server via mDNS")
	cmd.PersistentFlags().StringVar(&opts.cipherName, "cipher", "xor", "Payload cipher: xor or aes")
	cmd.PersistentFlags().StringVar(&opts.keyHex, "key", "", "AES key (hex)")
	cmd.PersistentFlags().StringVar(&opts.ivHex, "iv", "", "AES IV (hex)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Append log lines to this file instead of stderr")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newPutCmd(opts))
	cmd.AddCommand(newDelCmd(opts))
	cmd.AddCommand(newKeygenCmd())

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}
