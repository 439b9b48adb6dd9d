package checkpoint

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Terminal shows a modal dialog in the terminal.
type Terminal struct{}

func (t Terminal) Wait(ctx context.Context, req Request) (Decision, error) {
	app := tview.NewApplication()
	decision := Skip
	modal := tview.NewModal().
		SetText(req.String() + "\n\nBring the browser into the expected state and continue, or skip this screen.").
		AddButtons([]string{"Continue", "Skip"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Continue" {
				decision = Continue
			}
			app.Stop()
		})
	modal.SetBackgroundColor(tcell.ColorDarkRed).
		SetTextColor(tcell.ColorWhite).
		SetButtonBackgroundColor(tcell.ColorWhite).
		SetButtonTextColor(tcell.ColorDarkRed)

	stop := context.AfterFunc(ctx, app.Stop)
	defer stop()
	if err := app.SetRoot(modal, false).SetFocus(modal).Run(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return decision, nil
}
