package imu

import "errors"

// ErrSensorUnavailable wraps any failure to read the sensor.
var ErrSensorUnavailable = errors.New("imu: sensor unavailable")
