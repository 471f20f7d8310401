package main

import (
	"fmt"
	"time"
)

type RecordCommand struct {
	Episode     int           `long:"episode" default:"-1" description:"Episode number to write (default: the next free one)"`
	Duration    time.Duration `long:"duration" description:"Stop after this long, e.g. 30s (default: until 'q')"`
	Hz          int           `long:"hz" description:"Recording frequency (default: replay.hz from the config)"`
	Mirror      bool          `long:"mirror" description:"Mirror mode: invert shoulder_pan and wrist_roll positions"`
	LogFile     string        `long:"log-file" default:"csvarm.log" description:"Log file, the terminal belongs to the TUI"`
	MetricsAddr string        `long:"metrics-addr" value-name:"ADDR" description:"Serve Prometheus metrics on ADDR"`
}

func (c *RecordCommand) Execute(args []string) error {
	w, err := openWorkspace(c.LogFile)
	if err != nil {
		return err
	}
	defer w.Close()

	episode := c.Episode
	if episode < 0 {
		if episode, err = w.nextEpisode(); err != nil {
			return fmt.Errorf("find next episode: %w", err)
		}
	}
	if err := w.prepareWrite(); err != nil {
		return err
	}

	name := episodeName(episode)
	return runTeleop(w, teleopRun{
		title:       "csvarm record " + name,
		hz:          c.Hz,
		mirror:      c.Mirror,
		metricsAddr: c.MetricsAddr,
		duration:    c.Duration,
		record:      w.store(name),
		recordName:  name,
	})
}
