package main

import (
	"bytes"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Simulated sensor identity
const (
	TestDeviceAddress = "AA:BB:CC:DD:EE:01"
	TestDeviceID      = "aa:bb:cc:dd:ee:01"
)

var samplePayload = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x23, 0x3b}

// CommandTestSuite runs commands against a simulated sensor instead of the
// platform transport.
type CommandTestSuite struct {
	suite.Suite
	Transport       *testutils.SimulatedTransport
	originalFactory func(*logrus.Logger, time.Duration) devicefactory.Transport
}

func (s *CommandTestSuite) SetupTest() {
	s.originalFactory = devicefactory.TransportFactory
	s.Transport = s.NewSensor(TestDeviceID, device.PropRead, samplePayload)
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.TransportFactory = s.originalFactory
}

// NewSensor installs a simulated sensor as the platform transport.
func (s *CommandTestSuite) NewSensor(id string, props device.Property, values ...[]byte) *testutils.SimulatedTransport {
	sim := testutils.NewSimulatedTransport(
		device.Peripheral{ID: id, Name: "Thermo", RSSI: -50},
		testutils.FakeService{ID: "fff0"},
		testutils.FakeCharacteristic{ID: "fff1", Props: props},
		values...,
	)
	devicefactory.TransportFactory = func(*logrus.Logger, time.Duration) devicefactory.Transport {
		return sim
	}
	s.Transport = sim
	return sim
}

// ExecuteCommand runs cmd with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	return executeCommand(cmd, args...)
}

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
