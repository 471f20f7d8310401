package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"csvarm.json" description:"Configuration file (JSON, overridable with CSVARM_* variables)"`

	Setup       SetupCommand       `command:"setup" description:"Scan for arms and calibrate them"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Drive the follower from the leader, optionally replaying a recording first"`
	Record      RecordCommand      `command:"record" description:"Teleoperate and record the motion as an episode"`
	Replay      ReplayCommand      `command:"replay" description:"Replay recorded episodes on the follower"`
	Inspect     InspectCommand     `command:"inspect" description:"Show row counts and joint layout of recordings"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "csvarm - replay recorded trajectories on SO-101 arms, falling back to a live leader arm"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
