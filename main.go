// PDRADAR - A software-defined pulse-Doppler radar processor.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	RegisterFlags()
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	var cfg Config
	setDefaultConfig(&cfg)

	found, err := loadConfig(viper.New(), *configFilename, &cfg)
	if err != nil {
		logrus.Fatal(err)
	}

	if err := HandleFlags(&cfg); err != nil {
		logrus.Fatal(err)
	}
	if !found {
		logrus.Info("no config file found, using defaults")
	}

	r, err := NewRadar(cfg, logrus.StandardLogger())
	if err != nil {
		logrus.Fatal(err)
	}

	runErr := r.Run()
	if err := r.Close(); err != nil {
		logrus.Error(err)
	}
	if runErr != nil {
		logrus.Fatal(runErr)
	}
}
