// Command stepcompress-demo drives the step compressor and
// synchroniser against a scripted set of per-stepper moves described
// in a YAML file, printing (or, given --port, transmitting) the
// resulting queue_step/set_next_step_dir traffic.
package main

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ocellaris/stepcompress"
	serialtransport "github.com/ocellaris/stepcompress/transport/serial"
)

// Protocol message tags for the demo wire format -- not Klipper's own
// tag values, just two distinct constants standing in for whatever a
// real MCU's identify response would assign.
const (
	queueStepMsgtag      = 1
	setNextStepDirMsgtag = 2
)

type moveSpec struct {
	Dir       int     `yaml:"dir"`
	PrintTime float64 `yaml:"print_time"`
	StepTime  float64 `yaml:"step_time"`
}

type stepperSpec struct {
	OID   uint32     `yaml:"oid"`
	Moves []moveSpec `yaml:"moves"`
}

type demoConfig struct {
	TimeOffset float64       `yaml:"time_offset"`
	MCUFreq    float64       `yaml:"mcu_freq"`
	MaxError   uint32        `yaml:"max_error"`
	MoveSlots  int           `yaml:"move_slots"`
	Steppers   []stepperSpec `yaml:"steppers"`
}

// wordEncoder packs protocol words as big-endian uint32s, standing in
// for whatever checksum/escaping scheme a real wire encoder would add.
type wordEncoder struct{}

func (wordEncoder) Encode(words []uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// logTransport is the default Transport when --port is not given: it
// prints each batched message instead of sending it anywhere.
type logTransport struct{}

func (logTransport) SendBatch(batch []stepcompress.QueueMessage) error {
	for _, qm := range batch {
		log.Info().
			Uint64("min_clock", qm.MinClock).
			Uint64("req_clock", qm.ReqClock).
			Int("bytes", len(qm.Payload)).
			Msg("queue_message")
	}
	return nil
}

func main() {
	var cfgPath, port string
	var baud int

	cmd := &cobra.Command{
		Use:   "stepcompress-demo",
		Short: "Run a scripted move file through the step compressor and synchroniser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, port, baud)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML move script")
	cmd.Flags().StringVar(&port, "port", "", "serial port to transmit on (default: log only)")
	cmd.Flags().IntVar(&baud, "baud", 250000, "serial baud rate")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		log.Fatal().Err(err).Msg("stepcompress-demo setup failed")
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("stepcompress-demo failed")
	}
}

func run(cfgPath, port string, baud int) error {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	var cfg demoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return errors.Wrap(err, "parse config")
	}

	var transport stepcompress.Transport = logTransport{}
	if port != "" {
		p, err := serialtransport.Open(port, baud)
		if err != nil {
			return err
		}
		defer p.Close()
		transport = p
	}

	enc := wordEncoder{}
	steppers := make([]*stepcompress.StepCompress, 0, len(cfg.Steppers))
	for _, ss := range cfg.Steppers {
		sc := stepcompress.NewStepCompress(ss.OID, enc)
		sc.Fill(cfg.MaxError, queueStepMsgtag, setNextStepDirMsgtag)
		steppers = append(steppers, sc)
	}

	sync := stepcompress.NewSynchroniser(steppers, transport, cfg.MoveSlots)
	sync.SetTime(cfg.TimeOffset, cfg.MCUFreq)

	for i, ss := range cfg.Steppers {
		sc := steppers[i]
		for _, mv := range ss.Moves {
			if err := sc.Append(mv.Dir, mv.PrintTime, mv.StepTime); err != nil {
				return errors.Wrapf(err, "oid %d", ss.OID)
			}
		}
		if err := sc.Commit(); err != nil {
			return errors.Wrapf(err, "oid %d", ss.OID)
		}
	}

	return sync.Flush(math.MaxUint64)
}
