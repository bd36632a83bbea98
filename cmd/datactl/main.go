package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/ruteri/redact-client/cmd/flags"
	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/kms"
	"github.com/ruteri/redact-client/resolver"
	"github.com/urfave/cli/v2"
)

var flagPath *cli.StringFlag = &cli.StringFlag{
	Name:     "path",
	Required: true,
	Usage:    "data path, e.g. .profile.firstName.",
}
var flagType *cli.StringFlag = &cli.StringFlag{
	Name:  "type",
	Value: "string",
	Usage: "value type: bool, u64, i64, f64, string or media",
}
var flagValue *cli.StringFlag = &cli.StringFlag{
	Name:  "value",
	Usage: "value to store",
}
var flagFile *cli.StringFlag = &cli.StringFlag{
	Name:  "file",
	Usage: "read the value from a file instead of --value",
}
var flagMime *cli.StringFlag = &cli.StringFlag{
	Name:  "mime",
	Usage: "media MIME type; sniffed from the content when empty",
}
var flagKey *cli.StringFlag = &cli.StringFlag{
	Name:  "key",
	Usage: "seal under the key at this path instead of the path's current key",
}
var flagAlgorithm *cli.StringFlag = &cli.StringFlag{
	Name:  "algorithm",
	Value: string(cryptoutils.AlgorithmSecretbox),
	Usage: "sealing algorithm used with --key or bootstrap-key",
}
var flagTarget *cli.StringFlag = &cli.StringFlag{
	Name:     "target",
	Required: true,
	Usage:    "path the link points at",
}
var flagOut *cli.StringFlag = &cli.StringFlag{
	Name:  "out",
	Usage: "write media values to this file",
}
var flagSeed *cli.StringFlag = &cli.StringFlag{
	Name:     "seed",
	Required: true,
	Usage:    "hex-encoded master seed to split",
}
var flagParts *cli.IntFlag = &cli.IntFlag{
	Name:  "parts",
	Value: 3,
}
var flagThreshold *cli.IntFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
}

func main() {
	global := []cli.Flag{flags.ConfigFlag}
	global = append(global, flags.StoreFlags...)
	global = append(global, flags.LogJsonFlag, flags.LogDebugFlag, flags.LogUidFlag, flags.LogServiceFlag)

	app := &cli.App{
		Name:   "datactl",
		Usage:  "Inspect and edit redact records",
		Flags:  global,
		Before: flags.LoadConfigFile(global),
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "resolve and print a value",
				Flags:  []cli.Flag{flagPath, flagType, flagOut},
				Action: getValue,
			},
			{
				Name:   "put",
				Usage:  "seal and store a value",
				Flags:  []cli.Flag{flagPath, flagType, flagValue, flagFile, flagMime, flagKey, flagAlgorithm},
				Action: putValue,
			},
			{
				Name:   "link",
				Usage:  "store a reference from --path to --target",
				Flags:  []cli.Flag{flagPath, flagTarget},
				Action: linkPath,
			},
			{
				Name:   "bootstrap-key",
				Usage:  "create a key record at --path unless one exists",
				Flags:  []cli.Flag{flagPath, flagAlgorithm},
				Action: bootstrapKey,
			},
			{
				Name:  "split-seed",
				Usage: "split a KMS seed into hex Shamir shares for --kms-shares",
				Flags: []cli.Flag{flagSeed, flagParts, flagThreshold},
				Action: func(cCtx *cli.Context) error {
					seed, err := hex.DecodeString(cCtx.String(flagSeed.Name))
					if err != nil {
						return fmt.Errorf("invalid seed: %w", err)
					}
					shares, err := kms.SplitSeed(seed, cCtx.Int(flagParts.Name), cCtx.Int(flagThreshold.Name))
					if err != nil {
						return err
					}
					for _, share := range shares {
						fmt.Println(hex.EncodeToString(share))
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openEngine(cCtx *cli.Context) (*resolver.Engine, error) {
	logger := flags.SetupLogger(cCtx)
	records, err := flags.OpenRecordStore(cCtx, logger)
	if err != nil {
		return nil, err
	}
	cfg, err := flags.EngineConfig(cCtx)
	if err != nil {
		return nil, err
	}
	return resolver.NewEngine(records, cryptoutils.NewSuite(), cfg, logger), nil
}

func pathArgs(cCtx *cli.Context) (interfaces.DataPath, interfaces.DataType, error) {
	path, err := interfaces.NewDataPath(cCtx.String(flagPath.Name))
	if err != nil {
		return "", "", err
	}
	dataType, err := interfaces.ParseDataType(cCtx.String(flagType.Name))
	if err != nil {
		return "", "", err
	}
	return path, dataType, nil
}

func getValue(cCtx *cli.Context) error {
	path, dataType, err := pathArgs(cCtx)
	if err != nil {
		return err
	}
	engine, err := openEngine(cCtx)
	if err != nil {
		return err
	}

	value, err := engine.Resolve(cCtx.Context, path, dataType)
	if err != nil {
		return err
	}

	if value.Type != interfaces.TypeMedia {
		fmt.Println(value.Text())
		return nil
	}
	out := cCtx.String(flagOut.Name)
	if out == "" {
		return errors.New("media values need --out")
	}
	if err := os.WriteFile(out, value.Media.Data, 0600); err != nil {
		return err
	}
	fmt.Printf("%s, %d bytes written to %s\n", value.Media.MimeType, len(value.Media.Data), out)
	return nil
}

func putValue(cCtx *cli.Context) error {
	path, dataType, err := pathArgs(cCtx)
	if err != nil {
		return err
	}

	raw := []byte(cCtx.String(flagValue.Name))
	if file := cCtx.String(flagFile.Name); file != "" {
		raw, err = os.ReadFile(file)
		if err != nil {
			return err
		}
	}
	mimeType := cCtx.String(flagMime.Name)
	if dataType == interfaces.TypeMedia && mimeType == "" {
		mimeType = http.DetectContentType(raw)
	}

	value, err := interfaces.ParseValue(dataType, raw, mimeType)
	if err != nil {
		return err
	}

	engine, err := openEngine(cCtx)
	if err != nil {
		return err
	}

	if keyPath := cCtx.String(flagKey.Name); keyPath != "" {
		key, err := interfaces.NewDataPath(keyPath)
		if err != nil {
			return err
		}
		return engine.SealWithKey(cCtx.Context, path, value, interfaces.Algorithm(cCtx.String(flagAlgorithm.Name)), key)
	}
	return engine.SealAndStore(cCtx.Context, path, value)
}

func linkPath(cCtx *cli.Context) error {
	path, err := interfaces.NewDataPath(cCtx.String(flagPath.Name))
	if err != nil {
		return err
	}
	target, err := interfaces.NewDataPath(cCtx.String(flagTarget.Name))
	if err != nil {
		return err
	}
	engine, err := openEngine(cCtx)
	if err != nil {
		return err
	}
	return engine.Link(cCtx.Context, path, target)
}

func bootstrapKey(cCtx *cli.Context) error {
	path, err := interfaces.NewDataPath(cCtx.String(flagPath.Name))
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx)
	records, err := flags.OpenRecordStore(cCtx, logger)
	if err != nil {
		return err
	}
	deriver, err := flags.BuildKMS(cCtx)
	if err != nil {
		return err
	}

	created, err := kms.BootstrapDefaultKey(cCtx.Context, records, path, interfaces.Algorithm(cCtx.String(flagAlgorithm.Name)), deriver, logger)
	if err != nil {
		return err
	}
	if created {
		fmt.Println("created", path)
	} else {
		fmt.Println("exists", path)
	}
	return nil
}
