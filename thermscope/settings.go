package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/daq"
	"github.com/itohio/thermdaq/pkg/record"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createDividerTab(state),
		createAcquisitionTab(state),
		createLogTab(state),
		createDisplayTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// apply edits a copy of the configuration, validates it and saves it.
// Changes take effect on the next start.
func (state *appState) apply(edit func(c *config.Config) error) {
	next := *state.cfg
	if err := edit(&next); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := next.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	*state.cfg = next
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	klog.V(2).InfoS("Configuration saved", "path", state.configPath)
	if state.running() {
		dialog.ShowInformation("Settings", "Settings apply to the next run.", state.window)
	}
}

// portChoices returns the select options for ports plus a map back to port
// names. current is added when it is not among ports.
func portChoices(ports []daq.Port, current string) ([]string, map[string]string, string) {
	options := make([]string, 0, len(ports)+1)
	names := make(map[string]string, len(ports)+1)
	selected := ""

	for _, p := range ports {
		display := p.Name
		if p.Description != "" && p.Description != p.Name {
			display = fmt.Sprintf("%s (%s)", p.Name, p.Description)
		}
		options = append(options, display)
		names[display] = p.Name
		if p.Name == current {
			selected = display
		}
	}

	if selected == "" && current != "" {
		options = append(options, current)
		names[current] = current
		selected = current
	}
	return options, names, selected
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := daq.Ports()
	if err != nil {
		klog.ErrorS(err, "Failed to list serial ports")
	}
	options, names, selected := portChoices(ports, state.cfg.Serial.Port)

	portSelect := widget.NewSelect(options, nil)
	if selected != "" {
		portSelect.SetSelected(selected)
	}
	bitsEntry := newEntry(strconv.Itoa(state.cfg.Serial.ADCBits))
	vrefEntry := newEntry(fmt.Sprintf("%.3f", state.cfg.Serial.VRef))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "ADC Bits", Widget: bitsEntry},
			{Text: "ADC Reference (V)", Widget: vrefEntry},
		},
		OnSubmit: func() {
			state.apply(func(c *config.Config) error {
				if portSelect.Selected != "" {
					c.Serial.Port = names[portSelect.Selected]
					if c.Serial.Port == "" {
						c.Serial.Port = portSelect.Selected
					}
				}
				bits, err := parseInt("ADC bits", bitsEntry.Text)
				if err != nil {
					return err
				}
				vref, err := parseFloat("ADC reference", vrefEntry.Text)
				if err != nil {
					return err
				}
				c.Serial.ADCBits, c.Serial.VRef = bits, vref
				return nil
			})
		},
	}

	return container.NewTabItem("Serial", form)
}

// createDividerTab creates the voltage divider and calibration tab.
func createDividerTab(state *appState) *container.TabItem {
	vinEntry := newEntry(fmt.Sprintf("%.3f", state.cfg.Divider.VIn))
	r0Entry := newEntry(fmt.Sprintf("%.0f", state.cfg.Divider.R0))
	modeSelect := widget.NewSelect([]string{config.ModePooled, config.ModeIndividual}, nil)
	modeSelect.SetSelected(state.cfg.Calibration.Mode)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Supply (V)", Widget: vinEntry},
			{Text: "R0 (Ω)", Widget: r0Entry},
			{Text: "Calibration", Widget: modeSelect},
		},
		OnSubmit: func() {
			state.apply(func(c *config.Config) error {
				vin, err := parseFloat("supply voltage", vinEntry.Text)
				if err != nil {
					return err
				}
				r0, err := parseFloat("R0", r0Entry.Text)
				if err != nil {
					return err
				}
				c.Divider.VIn, c.Divider.R0 = vin, r0
				c.Calibration.Mode = modeSelect.Selected
				return nil
			})
		},
	}

	return container.NewTabItem("Divider", form)
}

// createAcquisitionTab creates the sampling configuration tab.
func createAcquisitionTab(state *appState) *container.TabItem {
	intervalEntry := newEntry(state.cfg.Acquisition.Interval.String())
	endEntry := newEntry(state.cfg.Acquisition.EndTime.String())
	maxEntry := newEntry(strconv.Itoa(state.cfg.Acquisition.MaxSamples))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Interval", Widget: intervalEntry},
			{Text: "End Time (0=unbounded)", Widget: endEntry},
			{Text: "Max Samples (0=by end time)", Widget: maxEntry},
		},
		OnSubmit: func() {
			state.apply(func(c *config.Config) error {
				interval, err := parseDuration("interval", intervalEntry.Text)
				if err != nil {
					return err
				}
				end, err := parseDuration("end time", endEntry.Text)
				if err != nil {
					return err
				}
				limit, err := parseInt("max samples", maxEntry.Text)
				if err != nil {
					return err
				}
				c.Acquisition.Interval = interval
				c.Acquisition.EndTime = end
				c.Acquisition.MaxSamples = limit
				return nil
			})
		},
	}

	return container.NewTabItem("Acquisition", form)
}

// createLogTab creates the log file configuration tab.
func createLogTab(state *appState) *container.TabItem {
	pathEntry := newEntry(state.cfg.Log.Path)
	sqliteEntry := newEntry(state.cfg.Log.SQLite)
	layoutSelect := widget.NewSelect([]string{
		string(record.LayoutResistance),
		string(record.LayoutTemperature),
		string(record.LayoutBoth),
		string(record.LayoutCompare),
	}, nil)
	layoutSelect.SetSelected(state.cfg.Log.Layout)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Log File", Widget: pathEntry},
			{Text: "Layout", Widget: layoutSelect},
			{Text: "SQLite Mirror", Widget: sqliteEntry},
		},
		OnSubmit: func() {
			state.apply(func(c *config.Config) error {
				if pathEntry.Text == "" {
					return fmt.Errorf("log file is required")
				}
				c.Log.Path = pathEntry.Text
				c.Log.Format = ""
				c.Log.Layout = layoutSelect.Selected
				c.Log.SQLite = sqliteEntry.Text
				return nil
			})
		},
	}

	return container.NewTabItem("Log", form)
}

// createDisplayTab creates the chart configuration tab.
func createDisplayTab(state *appState) *container.TabItem {
	windowEntry := newEntry(strconv.Itoa(state.cfg.Display.WindowSize))
	offsetEntry := newEntry(fmt.Sprintf("%g", state.cfg.Display.OffsetStep))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (samples)", Widget: windowEntry},
			{Text: "Channel Offset Step", Widget: offsetEntry},
		},
		OnSubmit: func() {
			state.apply(func(c *config.Config) error {
				size, err := parseInt("window", windowEntry.Text)
				if err != nil {
					return err
				}
				step, err := parseFloat("offset step", offsetEntry.Text)
				if err != nil {
					return err
				}
				c.Display.WindowSize, c.Display.OffsetStep = size, step
				return nil
			})
		},
	}

	return container.NewTabItem("Display", form)
}

func newEntry(text string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	return e
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

func parseInt(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

func parseDuration(name, s string) (time.Duration, error) {
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}
