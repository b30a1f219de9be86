/*
PDRADAR is a software-defined pulse-Doppler radar. It transmits a pulsed
waveform, receives the echoes, and turns each coherent processing interval
into range-Doppler detections.

Command-line Flags:

	-config=""

Processing config file. If empty, pdradar.{toml,yaml,json} is searched for in
/etc/pdradar and the working directory, and built-in defaults are used if none
is found. The file has the sections radar, waveform, compress, cpi, doppler,
cfar, range, report and sim:

	radar:
	  sample_rate: 10e6
	  frequency: 5e9
	  prf: 78125
	waveform:
	  type: barker
	  length: 13
	cpi:
	  pulses: 8
	doppler:
	  size: 8
	cfar:
	  guard_range: 2
	  guard_doppler: 1
	  train_range: 4
	  train_doppler: 2
	  pfa: 1e-6

	-device="sim"

Radio to use. The sim device is a sample accurate loopback with the point
targets listed in the sim section. The rtltcp device receives from an rtl_tcp
server given by -server and cannot transmit.

	-calibration="calibration.yaml"

Delay calibration table. Records are keyed by radio, master clock rate and
sample rate. The table is saved on exit.

	-calibrate=false

Transmit a single pulse, measure the loopback delay by cross-correlation,
store it in the calibration table and exit.

	-duration=0

Time to run for, 0 for infinite. Ex. 1h5m10s

	-metrics=":6060"

Listen address for prometheus metrics on /metrics and pprof on /debug/pprof.
Empty disables the server.

	-websocket=false

Stream detections as JSON to websocket clients connected to /detections on
the metrics listener.

	-mqtt=""

MQTT broker to publish detections to. Topic and credentials are read from
report.mqtt in the config file.

	-csv=""

File to append detections to as CSV, - for stdout.

	-samplerate, -centerfreq

Override radar.sample_rate and radar.frequency. Accept scientific notation,
ex. 2.4e6.

	-loglevel="info"

One of debug, info, warn or error.

Every flag may also be set with an environment variable named PDRADAR_ and
the upper case flag name, ex. PDRADAR_DEVICE=rtltcp.
*/
package main
